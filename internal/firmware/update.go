// Package firmware implements the discovery-and-firmware-update workflow
// against a node's diagnostic agent.
package firmware

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/andrej220/NTC/internal/agent"
	"github.com/andrej220/NTC/internal/job"
	"github.com/andrej220/NTC/internal/lg"
)

// Options describe one firmware update. Immutable once the job starts.
type Options struct {
	ImageURL  string `json:"imageUrl" validate:"required,url"`
	ImageName string `json:"imageName" validate:"required"`
	ImageMode Mode   `json:"imageMode" validate:"required"`
	Type      Type   `json:"firmwareType" validate:"required,oneof=bmc spi"`
	SkipReset bool   `json:"skipReset"`
}

// NodeContext carries the runtime facts about the target node.
type NodeContext struct {
	NodeID string `json:"nodeId" validate:"required"`
	NodeIP string `json:"nodeIp" validate:"required,ipv4"`
}

const (
	discoveryRetries = 6
	discoveryDelay   = 5000 * time.Millisecond
	uploadPath       = "/uploads"

	// spiUpdateAccepted is the exact token the agent emits when a SPI
	// image has been staged and needs a warm reset to take effect.
	spiUpdateAccepted = "Issue warm reset NOW!"
)

var validate = validator.New()

// UpdateJob runs the sequential update workflow: discover the agent,
// enumerate devices, upload the image, dispatch the type-specific update,
// then reset unless told not to. Any failure is terminal.
type UpdateJob struct {
	job.Lifecycle
	opts   Options
	node   NodeContext
	client agent.Client
	logger lg.Logger
}

func NewUpdateJob(id uuid.UUID, opts Options, node NodeContext, client agent.Client, logger lg.Logger) (*UpdateJob, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, &job.ValidationError{Err: err}
	}
	if err := validate.Struct(node); err != nil {
		return nil, &job.ValidationError{Err: err}
	}
	return &UpdateJob{
		Lifecycle: job.NewLifecycle(id, node.NodeID),
		opts:      opts,
		node:      node,
		client:    client,
		logger:    logger.With(lg.String("node", node.NodeID), lg.String("job", id.String())),
	}, nil
}

// updateProcs is the tagged dispatch table selecting the procedure for a
// firmware type. Construction-time validation guarantees membership.
var updateProcs = map[Type]func(*UpdateJob, context.Context) error{
	TypeBMC: (*UpdateJob).updateBMC,
	TypeSPI: (*UpdateJob).updateSPI,
}

// Run drives the workflow to its terminal outcome and fires the
// completion signal exactly once.
func (j *UpdateJob) Run(ctx context.Context) { j.Complete(j.run(ctx)) }

func (j *UpdateJob) run(ctx context.Context) error {
	j.logger.Info("starting firmware update",
		lg.String("type", string(j.opts.Type)),
		lg.String("image", j.opts.ImageName))

	if err := j.client.RetrySyncDiscovery(ctx, discoveryDelay, discoveryRetries); err != nil {
		return err
	}

	devices, err := j.client.GetAllDevices(ctx)
	if err != nil {
		return err
	}
	j.logger.Debug("agent enumerated devices", lg.Int("count", len(devices)))

	if err := j.client.UploadImageFile(ctx, j.opts.ImageURL, j.opts.ImageName, uploadPath); err != nil {
		return err
	}

	apply := updateProcs[j.opts.Type]
	return apply(j, ctx)
}

func (j *UpdateJob) updateBMC(ctx context.Context) error {
	code := TranslateBMCMode(j.opts.ImageMode)
	if !ValidBMCCode(code) {
		return &ModeValidationError{Mode: j.opts.ImageMode, Code: code, Type: TypeBMC}
	}

	if _, err := j.client.UpdateFirmware(ctx, string(TypeBMC), j.opts.ImageName, code, uploadPath); err != nil {
		return err
	}
	j.logger.Info("bmc update dispatched", lg.String("mode", code))

	if j.opts.SkipReset {
		return nil
	}
	if err := j.client.BMCReset(ctx, false); err != nil {
		return &ResetError{Kind: "bmc", Err: err}
	}
	return nil
}

func (j *UpdateJob) updateSPI(ctx context.Context) error {
	code := TranslateSPIMode(j.opts.ImageMode)
	if !ValidSPICode(code) {
		return &ModeValidationError{Mode: j.opts.ImageMode, Code: code, Type: TypeSPI}
	}

	raw, err := j.client.UpdateFirmware(ctx, string(TypeSPI), j.opts.ImageName, code, uploadPath)
	if err != nil {
		return err
	}
	if err := validateSPIResponse(raw); err != nil {
		j.logger.Error("spi update response rejected",
			lg.Err(err),
			lg.ByteString("body", raw))
		return &UpdateProtocolError{NodeID: j.Node(), Raw: raw, Cause: err}
	}
	j.logger.Info("spi update confirmed", lg.String("mode", code))

	if j.opts.SkipReset {
		return nil
	}
	if err := j.client.WarmReset(ctx, false); err != nil {
		return &ResetError{Kind: "warm", Err: err}
	}
	return nil
}

// validateSPIResponse accepts the update only when the second-to-last
// result entry confirms the staged image. The agent appends a trailing
// summary entry, hence second-to-last.
func validateSPIResponse(raw []byte) error {
	var body struct {
		Result []struct {
			AtomicTestData struct {
				SecureFirmwareUpdate string `json:"secure_firmware_update"`
			} `json:"atomic_test_data"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Errorf("undecodable response: %w", err)
	}
	if len(body.Result) < 2 {
		return fmt.Errorf("result sequence too short: %d entries", len(body.Result))
	}
	got := body.Result[len(body.Result)-2].AtomicTestData.SecureFirmwareUpdate
	if got != spiUpdateAccepted {
		return fmt.Errorf("secure_firmware_update reported %q", got)
	}
	return nil
}
