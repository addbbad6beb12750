// Package fifo wraps the named pipes the delivery subsystem signals
// through: sf_fin (workers post their pid on exit), fd_wake_up (any
// process posts a single byte to wake the scheduler) and transfer_log
// (sign-prefixed text lines for the operator-visible transfer log).
package fifo

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Well-known fifo basenames under the work directory's fifo dir.
const (
	FinName         = "sf_fin"
	WakeupName      = "fd_wake_up"
	TransferLogName = "transfer_log"
)

// Sign is the three-character severity prefix of a transfer_log line.
type Sign string

const (
	SignInfo  Sign = "<I>"
	SignWarn  Sign = "<W>"
	SignError Sign = "<E>"
	SignDebug Sign = "<D>"
)

// Ensure creates path as a fifo if it does not exist yet. An existing
// fifo is left alone; an existing non-fifo file is an error.
func Ensure(path string) error {
	fi, err := os.Stat(path)
	if err == nil {
		if fi.Mode()&os.ModeNamedPipe == 0 {
			return fmt.Errorf("fifo: %s exists and is not a fifo", path)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}
	if err := unix.Mkfifo(path, 0o600); err != nil {
		return fmt.Errorf("fifo: mkfifo %s: %w", path, err)
	}
	return nil
}

// post opens path write-only without blocking and writes data. A fifo
// with no reader attached raises ENXIO; that is not an error here —
// nobody is listening, so there is nobody to wake.
func post(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, unix.ENXIO) || os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// PostWakeup writes the single wake-up byte to the fd_wake_up fifo.
func PostWakeup(path string) error {
	return post(path, []byte{1})
}

// PostPID writes pid to the sf_fin fifo, terminated by a newline so
// concurrent exiting workers stay line-separated for the reader.
func PostPID(path string, pid int) error {
	return post(path, []byte(fmt.Sprintf("%d\n", pid)))
}

// OpenReader opens path for non-blocking reads, creating the fifo
// first if needed. The scheduler holds this open for its lifetime and
// drains it whenever its event loop polls.
func OpenReader(path string) (*os.File, error) {
	if err := Ensure(path); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
}

// Drain reads and discards everything currently buffered in the fifo,
// reporting whether at least one byte was pending.
func Drain(f *os.File) bool {
	var buf [256]byte
	woken := false
	for {
		n, err := f.Read(buf[:])
		if n > 0 {
			woken = true
		}
		if err != nil || n == 0 {
			return woken
		}
	}
}

// TransferLog appends sign-prefixed lines to the transfer_log sink.
// The sink is usually the transfer_log fifo but any append target
// works; lines follow the "DD HH:MM:SS <S> text" layout the operator
// log window expects.
type TransferLog struct {
	path string
	now  func() time.Time
}

// NewTransferLog returns a TransferLog writing to path.
func NewTransferLog(path string) *TransferLog {
	return &TransferLog{path: path, now: time.Now}
}

// Log formats and posts one line. Errors are returned but callers
// treat the transfer log as best-effort.
func (t *TransferLog) Log(sign Sign, format string, args ...any) error {
	line := fmt.Sprintf("%s %s %s\n",
		t.now().Format("02 15:04:05"), sign, fmt.Sprintf(format, args...))
	return post(t.path, []byte(line))
}
