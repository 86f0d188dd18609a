package serial_test

import (
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SujithChristopher/gdserial/serial"
)

// openPtyTransport opens the slave side of a fresh pseudo-terminal
// through TTYOpener and hands back the master for the peer end.
func openPtyTransport(t *testing.T, cfg serial.PortConfig) (serial.Transport, *os.File) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	name := slave.Name()
	require.NoError(t, slave.Close())
	t.Cleanup(func() { master.Close() })

	tr, err := serial.TTYOpener{}.Open(name, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr, master
}

func TestTTYOpenerValidation(t *testing.T) {
	_, err := serial.TTYOpener{}.Open("", serial.DefaultPortConfig())
	assert.ErrorIs(t, err, serial.ErrNoPortName)

	bad := serial.DefaultPortConfig()
	bad.DataBits = 5
	_, err = serial.TTYOpener{}.Open("/dev/null", bad)
	assert.Error(t, err)

	_, err = serial.TTYOpener{}.Open("/dev/nonexistent-serial-device", serial.DefaultPortConfig())
	assert.Error(t, err)
}

func TestTTYTransportRoundtrip(t *testing.T) {
	cfg := serial.DefaultPortConfig()
	cfg.ReadTimeout = 500 * time.Millisecond
	tr, master := openPtyTransport(t, cfg)

	_, err := master.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := tr.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	n, err = tr.Write([]byte("world"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	peer := make([]byte, 16)
	n, err = master.Read(peer)
	require.NoError(t, err)
	assert.Equal(t, "world", string(peer[:n]))
}

func TestTTYTransportReadTimeout(t *testing.T) {
	cfg := serial.DefaultPortConfig()
	cfg.ReadTimeout = 100 * time.Millisecond
	tr, _ := openPtyTransport(t, cfg)

	start := time.Now()
	buf := make([]byte, 16)
	n, err := tr.Read(buf)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Zero(t, n, "expired read returns no data")
	assert.Less(t, elapsed, time.Second, "read must honor the timeout")
}

func TestTTYTransportBytesAvailable(t *testing.T) {
	cfg := serial.DefaultPortConfig()
	cfg.ReadTimeout = 100 * time.Millisecond
	tr, master := openPtyTransport(t, cfg)

	n, err := tr.BytesAvailable()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = master.Write([]byte("abc"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, err := tr.BytesAvailable()
		return err == nil && n == 3
	}, time.Second, 5*time.Millisecond, "queued bytes should become visible")
}

func TestTTYTransportClear(t *testing.T) {
	cfg := serial.DefaultPortConfig()
	cfg.ReadTimeout = 100 * time.Millisecond
	tr, master := openPtyTransport(t, cfg)

	_, err := master.Write([]byte("stale"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		n, err := tr.BytesAvailable()
		return err == nil && n > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, tr.Clear())
	n, err := tr.BytesAvailable()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTTYTransportReconfigure(t *testing.T) {
	tr, _ := openPtyTransport(t, serial.DefaultPortConfig())

	assert.NoError(t, tr.SetBaudRate(115200))
	assert.Error(t, tr.SetBaudRate(12345))
	assert.NoError(t, tr.SetDataBits(7))
	assert.Error(t, tr.SetDataBits(5))
	assert.NoError(t, tr.SetParity(serial.ParityEven))
	assert.NoError(t, tr.SetStopBits(2))
	assert.NoError(t, tr.SetFlowControl(serial.FlowSoftware))
	assert.NoError(t, tr.SetReadTimeout(250*time.Millisecond))
	assert.Error(t, tr.SetReadTimeout(-time.Second))
}

func TestTTYTransportCloseIdempotent(t *testing.T) {
	tr, _ := openPtyTransport(t, serial.DefaultPortConfig())

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.SetBaudRate(9600), serial.ErrTransportClosed)
}
