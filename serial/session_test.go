package serial_test

import (
	"io"
	"log/slog"
	"testing"

	"go.uber.org/mock/gomock"
	"golang.org/x/sys/unix"

	"github.com/SujithChristopher/gdserial/serial"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openSession(t *testing.T, ctrl *gomock.Controller) (*serial.Session, *serial.MockTransport) {
	t.Helper()
	tr := serial.NewMockTransport(ctrl)
	op := serial.NewMockOpener(ctrl)
	op.EXPECT().Open("/dev/ttyUSB0", gomock.Any()).Return(tr, nil)

	s := serial.NewSession(serial.SessionConfig{
		Opener: op,
		Logger: quietLogger(),
		Port:   "/dev/ttyUSB0",
	})
	if !s.Open() {
		t.Fatal("Open() should succeed")
	}
	return s, tr
}

func TestSessionOpen(t *testing.T) {
	t.Run("fails without a port name", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		s := serial.NewSession(serial.SessionConfig{
			Opener: serial.NewMockOpener(ctrl),
			Logger: quietLogger(),
		})
		if s.Open() {
			t.Error("Open() without a port name should fail")
		}
	})

	t.Run("failure leaves the session empty", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		op := serial.NewMockOpener(ctrl)
		op.EXPECT().Open("/dev/ttyUSB0", gomock.Any()).Return(nil, unix.ENOENT)

		s := serial.NewSession(serial.SessionConfig{
			Opener: op,
			Logger: quietLogger(),
			Port:   "/dev/ttyUSB0",
		})
		if s.Open() {
			t.Error("Open() should fail")
		}
		if s.IsOpen() {
			t.Error("IsOpen() should be false after a failed open")
		}
	})

	t.Run("reopen closes the previous transport", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		tr1 := serial.NewMockTransport(ctrl)
		tr2 := serial.NewMockTransport(ctrl)
		op := serial.NewMockOpener(ctrl)
		gomock.InOrder(
			op.EXPECT().Open("/dev/ttyUSB0", gomock.Any()).Return(tr1, nil),
			tr1.EXPECT().Close().Return(nil),
			op.EXPECT().Open("/dev/ttyUSB0", gomock.Any()).Return(tr2, nil),
			tr2.EXPECT().Close().Return(nil),
		)

		s := serial.NewSession(serial.SessionConfig{
			Opener: op,
			Logger: quietLogger(),
			Port:   "/dev/ttyUSB0",
		})
		if !s.Open() || !s.Open() {
			t.Fatal("both opens should succeed")
		}
		s.Close()
	})
}

func TestSessionProbe(t *testing.T) {
	t.Run("disconnect during probe tears the session down", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		s, tr := openSession(t, ctrl)
		tr.EXPECT().BytesAvailable().Return(0, unix.EIO)
		tr.EXPECT().Close().Return(nil)

		if s.IsOpen() {
			t.Error("IsOpen() should be false after a disconnect-class probe error")
		}
		// The transport is gone; no further probe calls are made.
		if s.IsOpen() {
			t.Error("IsOpen() should stay false")
		}
	})

	t.Run("inconclusive probe error keeps the session open", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		s, tr := openSession(t, ctrl)
		tr.EXPECT().BytesAvailable().Return(0, unix.EINTR)

		if !s.IsOpen() {
			t.Error("IsOpen() should be true on an inconclusive probe error")
		}
		tr.EXPECT().Close().Return(nil)
		s.Close()
	})
}

func TestSessionWrite(t *testing.T) {
	t.Run("writes all bytes and flushes", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		s, tr := openSession(t, ctrl)
		gomock.InOrder(
			tr.EXPECT().BytesAvailable().Return(0, nil),
			tr.EXPECT().Write([]byte("hello\n")).Return(6, nil),
			tr.EXPECT().Flush().Return(nil),
		)
		if !s.WriteLine("hello") {
			t.Error("WriteLine should succeed")
		}
		tr.EXPECT().Close().Return(nil)
		s.Close()
	})

	t.Run("disconnect during write clears the connected flag", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		s, tr := openSession(t, ctrl)
		gomock.InOrder(
			tr.EXPECT().BytesAvailable().Return(0, nil),
			tr.EXPECT().Write([]byte("x")).Return(0, unix.EPIPE),
			tr.EXPECT().Close().Return(nil),
		)
		if s.Write([]byte("x")) {
			t.Error("Write should fail on a broken pipe")
		}
		if s.IsOpen() {
			t.Error("the next IsOpen() probe should report false")
		}
	})

	t.Run("transient write failure leaves the session open", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		s, tr := openSession(t, ctrl)
		gomock.InOrder(
			tr.EXPECT().BytesAvailable().Return(0, nil),
			tr.EXPECT().Write([]byte("x")).Return(0, unix.EAGAIN),
			tr.EXPECT().BytesAvailable().Return(0, nil),
		)
		if s.Write([]byte("x")) {
			t.Error("Write should report failure")
		}
		if !s.IsOpen() {
			t.Error("session should remain open after a transient error")
		}
		tr.EXPECT().Close().Return(nil)
		s.Close()
	})
}

func TestSessionRead(t *testing.T) {
	t.Run("timeout is no data, not an error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		s, tr := openSession(t, ctrl)
		gomock.InOrder(
			tr.EXPECT().BytesAvailable().Return(0, nil),
			tr.EXPECT().Read(gomock.Any()).Return(0, unix.ETIMEDOUT),
			tr.EXPECT().BytesAvailable().Return(0, nil),
		)
		if got := s.Read(16); len(got) != 0 {
			t.Errorf("Read = %q, want empty", got)
		}
		if !s.IsOpen() {
			t.Error("session should remain open after a read timeout")
		}
		tr.EXPECT().Close().Return(nil)
		s.Close()
	})

	t.Run("disconnect tears the session down", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		s, tr := openSession(t, ctrl)
		gomock.InOrder(
			tr.EXPECT().BytesAvailable().Return(0, nil),
			tr.EXPECT().Read(gomock.Any()).Return(0, unix.ENODEV),
			tr.EXPECT().Close().Return(nil),
		)
		if got := s.Read(16); len(got) != 0 {
			t.Errorf("Read = %q, want empty", got)
		}
		if s.IsOpen() {
			t.Error("IsOpen() should report false after a disconnect")
		}
	})

	t.Run("returns the bytes delivered", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		s, tr := openSession(t, ctrl)
		gomock.InOrder(
			tr.EXPECT().BytesAvailable().Return(3, nil),
			tr.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
				return copy(p, "abc"), nil
			}),
		)
		if got := string(s.Read(16)); got != "abc" {
			t.Errorf("Read = %q, want %q", got, "abc")
		}
		tr.EXPECT().Close().Return(nil)
		s.Close()
	})
}

func TestSessionReadString(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	s, tr := openSession(t, ctrl)
	gomock.InOrder(
		tr.EXPECT().BytesAvailable().Return(0, nil),
		tr.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, []byte{0xff, 0xfe}), nil
		}),
		tr.EXPECT().BytesAvailable().Return(0, nil),
	)
	if got := s.ReadString(16); got != "" {
		t.Errorf("ReadString of invalid UTF-8 = %q, want empty", got)
	}
	if !s.IsOpen() {
		t.Error("invalid encoding must not close the session")
	}
	tr.EXPECT().Close().Return(nil)
	s.Close()
}

func TestSessionReadLine(t *testing.T) {
	byteRead := func(tr *serial.MockTransport, b byte) *gomock.Call {
		return tr.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			p[0] = b
			return 1, nil
		})
	}

	t.Run("strips carriage return and line feed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		s, tr := openSession(t, ctrl)
		gomock.InOrder(
			tr.EXPECT().BytesAvailable().Return(0, nil),
			byteRead(tr, 'o'),
			byteRead(tr, 'k'),
			byteRead(tr, '\r'),
			byteRead(tr, '\n'),
		)
		if got := s.ReadLine(); got != "ok" {
			t.Errorf("ReadLine = %q, want %q", got, "ok")
		}
		tr.EXPECT().Close().Return(nil)
		s.Close()
	})

	t.Run("timeout returns the partial line", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		s, tr := openSession(t, ctrl)
		gomock.InOrder(
			tr.EXPECT().BytesAvailable().Return(0, nil),
			byteRead(tr, 'h'),
			byteRead(tr, 'e'),
			byteRead(tr, 'l'),
			tr.EXPECT().Read(gomock.Any()).Return(0, unix.ETIMEDOUT),
		)
		if got := s.ReadLine(); got != "hel" {
			t.Errorf("ReadLine = %q, want partial %q", got, "hel")
		}
		tr.EXPECT().Close().Return(nil)
		s.Close()
	})

	t.Run("disconnect with empty accumulator returns empty", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		s, tr := openSession(t, ctrl)
		gomock.InOrder(
			tr.EXPECT().BytesAvailable().Return(0, nil),
			tr.EXPECT().Read(gomock.Any()).Return(0, unix.EIO),
			tr.EXPECT().Close().Return(nil),
		)
		if got := s.ReadLine(); got != "" {
			t.Errorf("ReadLine = %q, want empty", got)
		}
		if s.IsOpen() {
			t.Error("session should be torn down")
		}
	})

	t.Run("disconnect after partial content still returns it", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		s, tr := openSession(t, ctrl)
		gomock.InOrder(
			tr.EXPECT().BytesAvailable().Return(0, nil),
			byteRead(tr, 'h'),
			byteRead(tr, 'i'),
			tr.EXPECT().Read(gomock.Any()).Return(0, unix.EIO),
			tr.EXPECT().Close().Return(nil),
		)
		if got := s.ReadLine(); got != "hi" {
			t.Errorf("ReadLine = %q, want partial %q", got, "hi")
		}
	})
}

func TestSessionBytesAvailable(t *testing.T) {
	t.Run("returns the count", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		s, tr := openSession(t, ctrl)
		tr.EXPECT().BytesAvailable().Return(42, nil)
		if got := s.BytesAvailable(); got != 42 {
			t.Errorf("BytesAvailable = %d, want 42", got)
		}
		tr.EXPECT().Close().Return(nil)
		s.Close()
	})

	t.Run("only disconnect-class errors close the session", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		s, tr := openSession(t, ctrl)
		tr.EXPECT().BytesAvailable().Return(0, unix.EINTR)
		if got := s.BytesAvailable(); got != 0 {
			t.Errorf("BytesAvailable = %d, want 0", got)
		}
		tr.EXPECT().BytesAvailable().Return(0, nil)
		if !s.IsOpen() {
			t.Error("session should remain open")
		}

		tr.EXPECT().BytesAvailable().Return(0, unix.ENODEV)
		tr.EXPECT().Close().Return(nil)
		if got := s.BytesAvailable(); got != 0 {
			t.Errorf("BytesAvailable = %d, want 0", got)
		}
		if s.IsOpen() {
			t.Error("session should be torn down after a device-absent error")
		}
	})
}

func TestSessionClearBuffer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	s, tr := openSession(t, ctrl)
	gomock.InOrder(
		tr.EXPECT().BytesAvailable().Return(0, nil),
		tr.EXPECT().Clear().Return(nil),
	)
	if !s.ClearBuffer() {
		t.Error("ClearBuffer should succeed")
	}

	gomock.InOrder(
		tr.EXPECT().BytesAvailable().Return(0, nil),
		tr.EXPECT().Clear().Return(unix.ENODEV),
		tr.EXPECT().Close().Return(nil),
	)
	if s.ClearBuffer() {
		t.Error("ClearBuffer should fail on a disconnect")
	}
	if s.IsOpen() {
		t.Error("session should be torn down")
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	s, tr := openSession(t, ctrl)
	tr.EXPECT().Close().Return(nil)
	s.Close()
	s.Close()

	// Never-opened session.
	fresh := serial.NewSession(serial.SessionConfig{
		Opener: serial.NewMockOpener(ctrl),
		Logger: quietLogger(),
	})
	fresh.Close()
}
