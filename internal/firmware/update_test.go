package firmware_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrej220/NTC/internal/agent"
	"github.com/andrej220/NTC/internal/firmware"
	"github.com/andrej220/NTC/internal/job"
	"github.com/andrej220/NTC/internal/lg"
)

var _ job.Job = (*firmware.UpdateJob)(nil)

type updateCall struct {
	kind, image, mode, path string
}

// mockAgent records calls and returns canned results.
type mockAgent struct {
	discoveryErr error
	devicesErr   error
	uploadErr    error
	updateBody   []byte
	updateErr    error
	bmcResetErr  error
	warmResetErr error

	updates    []updateCall
	bmcResets  []bool
	warmResets []bool
	uploads    int
}

func (m *mockAgent) RetrySyncDiscovery(_ context.Context, _ time.Duration, _ int) error {
	return m.discoveryErr
}

func (m *mockAgent) GetAllDevices(_ context.Context) ([]agent.Device, error) {
	if m.devicesErr != nil {
		return nil, m.devicesErr
	}
	return []agent.Device{{ID: "dev0", Type: "bmc"}}, nil
}

func (m *mockAgent) UploadImageFile(_ context.Context, _, _, _ string) error {
	m.uploads++
	return m.uploadErr
}

func (m *mockAgent) UpdateFirmware(_ context.Context, kind, image, mode, path string) ([]byte, error) {
	m.updates = append(m.updates, updateCall{kind, image, mode, path})
	return m.updateBody, m.updateErr
}

func (m *mockAgent) BMCReset(_ context.Context, powerCycle bool) error {
	m.bmcResets = append(m.bmcResets, powerCycle)
	return m.bmcResetErr
}

func (m *mockAgent) WarmReset(_ context.Context, powerCycle bool) error {
	m.warmResets = append(m.warmResets, powerCycle)
	return m.warmResetErr
}

const spiOKBody = `{"result":[
	{"atomic_test_data":{"secure_firmware_update":"Issue warm reset NOW!"}},
	{"atomic_test_data":{"summary":"done"}}
]}`

func bmcOptions() firmware.Options {
	return firmware.Options{
		ImageURL:  "http://images.local/bmc.bin",
		ImageName: "bmc.bin",
		ImageMode: "bmcapp",
		Type:      firmware.TypeBMC,
	}
}

func spiOptions() firmware.Options {
	return firmware.Options{
		ImageURL:  "http://images.local/bios.rom",
		ImageName: "bios.rom",
		ImageMode: "3",
		Type:      firmware.TypeSPI,
	}
}

func testNode() firmware.NodeContext {
	return firmware.NodeContext{NodeID: "node-17", NodeIP: "10.1.2.3"}
}

func runJob(t *testing.T, opts firmware.Options, node firmware.NodeContext, client agent.Client) error {
	t.Helper()
	jb, err := firmware.NewUpdateJob(uuid.New(), opts, node, client, lg.Discard)
	require.NoError(t, err)

	jb.Run(context.Background())

	select {
	case <-jb.Done():
	default:
		t.Fatal("job did not complete")
	}
	return jb.Err()
}

func TestNewUpdateJobValidation(t *testing.T) {
	client := &mockAgent{}

	tests := []struct {
		name string
		opts firmware.Options
		node firmware.NodeContext
	}{
		{"malformed ip", spiOptions(), firmware.NodeContext{NodeID: "n", NodeIP: "999.1.2.3"}},
		{"missing ip", spiOptions(), firmware.NodeContext{NodeID: "n"}},
		{"missing node id", spiOptions(), firmware.NodeContext{NodeIP: "10.0.0.1"}},
		{
			"unknown firmware type",
			firmware.Options{ImageURL: "http://i.local/x", ImageName: "x", ImageMode: "1", Type: "flash"},
			testNode(),
		},
		{
			"missing image url",
			firmware.Options{ImageName: "x", ImageMode: "1", Type: firmware.TypeSPI},
			testNode(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := firmware.NewUpdateJob(uuid.New(), tt.opts, tt.node, client, lg.Discard)
			var verr *job.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestBMCUpdateHappyPath(t *testing.T) {
	client := &mockAgent{}
	err := runJob(t, bmcOptions(), testNode(), client)
	assert.NoError(t, err)

	require.Len(t, client.updates, 1)
	assert.Equal(t, updateCall{"bmc", "bmc.bin", "0x140", "/uploads"}, client.updates[0])

	// reset is the non-destructive variant
	assert.Equal(t, []bool{false}, client.bmcResets)
	assert.Empty(t, client.warmResets)
}

func TestBMCUpdateSkipReset(t *testing.T) {
	client := &mockAgent{}
	opts := bmcOptions()
	opts.SkipReset = true

	assert.NoError(t, runJob(t, opts, testNode(), client))
	assert.Empty(t, client.bmcResets)
}

func TestBMCUpdateModeValidation(t *testing.T) {
	client := &mockAgent{}
	opts := bmcOptions()
	opts.ImageMode = "bogus"

	err := runJob(t, opts, testNode(), client)
	var merr *firmware.ModeValidationError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, firmware.TypeBMC, merr.Type)
	assert.Empty(t, client.updates, "no update call may follow a failed mode validation")
}

func TestBMCResetFailureFailsJob(t *testing.T) {
	client := &mockAgent{bmcResetErr: errors.New("agent went away")}

	err := runJob(t, bmcOptions(), testNode(), client)
	var rerr *firmware.ResetError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "bmc", rerr.Kind)
}

func TestSPIUpdateHappyPath(t *testing.T) {
	client := &mockAgent{updateBody: []byte(spiOKBody)}

	assert.NoError(t, runJob(t, spiOptions(), testNode(), client))

	require.Len(t, client.updates, 1)
	assert.Equal(t, updateCall{"spi", "bios.rom", "3", "/uploads"}, client.updates[0])
	assert.Equal(t, []bool{false}, client.warmResets)
	assert.Empty(t, client.bmcResets)
}

func TestSPIUpdateResponseValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "BOOM"},
		{"empty result", `{"result":[]}`},
		{"single entry", `{"result":[{"atomic_test_data":{"secure_firmware_update":"Issue warm reset NOW!"}}]}`},
		{"wrong token", `{"result":[{"atomic_test_data":{"secure_firmware_update":"ok"}},{}]}`},
		{"field absent", `{"result":[{"atomic_test_data":{}},{}]}`},
		{"wrong shape", `{"result":"done"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockAgent{updateBody: []byte(tt.body)}

			err := runJob(t, spiOptions(), testNode(), client)
			var perr *firmware.UpdateProtocolError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "node-17", perr.NodeID)
			assert.Equal(t, []byte(tt.body), perr.Raw)
			assert.Empty(t, client.warmResets, "no reset may follow a rejected update")
		})
	}
}

func TestSPIModeNameTranslatesBeforeDispatch(t *testing.T) {
	client := &mockAgent{updateBody: []byte(spiOKBody)}
	opts := spiOptions()
	opts.ImageMode = "uefi"

	assert.NoError(t, runJob(t, opts, testNode(), client))
	require.Len(t, client.updates, 1)
	assert.Equal(t, "2", client.updates[0].mode)
}

func TestDiscoveryFailureIsTerminal(t *testing.T) {
	client := &mockAgent{discoveryErr: agent.ErrDiscoveryExhausted}

	err := runJob(t, spiOptions(), testNode(), client)
	assert.ErrorIs(t, err, agent.ErrDiscoveryExhausted)
	assert.Zero(t, client.uploads)
	assert.Empty(t, client.updates)
}

func TestEnumerationFailureIsTerminal(t *testing.T) {
	client := &mockAgent{devicesErr: &agent.TransportError{Op: "device enumeration", Err: errors.New("conn refused")}}

	err := runJob(t, bmcOptions(), testNode(), client)
	var terr *agent.TransportError
	assert.ErrorAs(t, err, &terr)
	assert.Zero(t, client.uploads)
}

func TestUploadFailureIsTerminal(t *testing.T) {
	client := &mockAgent{uploadErr: &agent.TransportError{Op: "image upload", Err: errors.New("disk full")}}

	err := runJob(t, bmcOptions(), testNode(), client)
	var terr *agent.TransportError
	assert.ErrorAs(t, err, &terr)
	assert.Empty(t, client.updates)
}

func TestCompletionFiresOnce(t *testing.T) {
	client := &mockAgent{updateBody: []byte(spiOKBody)}
	jb, err := firmware.NewUpdateJob(uuid.New(), spiOptions(), testNode(), client, lg.Discard)
	require.NoError(t, err)

	jb.Run(context.Background())
	first := jb.Err()

	// a late failure signal must not overwrite the recorded outcome
	jb.Complete(errors.New("too late"))
	assert.Equal(t, first, jb.Err())
}
