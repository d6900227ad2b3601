package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxFrameSize = 16 << 20

var (
	jpegSOI = []byte{0xff, 0xd8}
	jpegEOI = []byte{0xff, 0xd9}
)

// ffmpegSource keeps one ffmpeg process per camera that writes an MJPEG
// stream to stdout. Read returns the newest complete frame.
type ffmpegSource struct {
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	timeout time.Duration

	stderr lockedBuffer
	frames chan []byte
	done   chan struct{}
	err    error // valid once done is closed

	pending []byte
}

func newFFmpegSource(ctx context.Context, bin, input, format string, fps float64, timeout time.Duration) (*ffmpegSource, error) {
	if bin == "" {
		bin = "ffmpeg"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not available: %w", err)
	}
	return startStream(ctx, path, ffmpegArgs(input, format, fps), timeout)
}

func ffmpegArgs(input, format string, fps float64) []string {
	var args []string
	args = append(args, "-hide_banner", "-loglevel", "error")
	switch {
	case isRTSP(input):
		args = append(args, "-rtsp_transport", "tcp")
	case format == "":
		// Files are read at their native rate rather than as fast as possible.
		args = append(args, "-re")
	}
	if format != "" {
		args = append(args, "-f", format)
	}
	args = append(args, "-i", input)
	if fps > 0 {
		args = append(args, "-vf", "fps="+strconv.FormatFloat(fps, 'f', -1, 64))
	}
	return append(args,
		"-f", "mjpeg",
		"-q:v", "2",
		"-",
	)
}

// startStream launches the process and waits for its first frame, so a dead
// stream fails here instead of on the first Read.
func startStream(ctx context.Context, bin string, args []string, timeout time.Duration) (*ffmpegSource, error) {
	procCtx, cancel := context.WithCancel(context.Background())
	s := &ffmpegSource{
		cancel:  cancel,
		timeout: timeout,
		frames:  make(chan []byte, 1),
		done:    make(chan struct{}),
	}
	s.cmd = exec.CommandContext(procCtx, bin, args...)
	s.cmd.Stderr = &s.stderr

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := s.cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	go s.readFrames(stdout)

	first, err := s.next(ctx)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.pending = first
	return s, nil
}

// readFrames splits stdout into JPEG frames until the process exits. Only the
// newest frame is kept; older unread frames are dropped.
func (s *ffmpegSource) readFrames(stdout io.Reader) {
	defer close(s.done)

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 256<<10), maxFrameSize)
	sc.Split(splitJPEG)
	for sc.Scan() {
		frame := append([]byte(nil), sc.Bytes()...)
		select {
		case <-s.frames:
		default:
		}
		s.frames <- frame
	}

	scanErr := sc.Err()
	if scanErr != nil {
		s.cancel()
	}
	waitErr := s.cmd.Wait()

	switch {
	case scanErr != nil:
		s.err = fmt.Errorf("ffmpeg output unreadable: %w", scanErr)
	case waitErr != nil:
		s.err = fmt.Errorf("ffmpeg exited: %w (stderr: %s)", waitErr, s.stderr.String())
	default:
		s.err = errors.New("ffmpeg stream ended")
	}
}

func (s *ffmpegSource) next(ctx context.Context) ([]byte, error) {
	var timeout <-chan time.Time
	if s.timeout > 0 {
		t := time.NewTimer(s.timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case frame := <-s.frames:
		return frame, nil
	case <-s.done:
		select {
		case frame := <-s.frames:
			return frame, nil
		default:
		}
		return nil, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, fmt.Errorf("no frame from ffmpeg within %s", s.timeout)
	}
}

func (s *ffmpegSource) Read(ctx context.Context) ([]byte, error) {
	if s.pending != nil {
		frame := s.pending
		s.pending = nil
		return frame, nil
	}
	return s.next(ctx)
}

// Close kills the process and waits for the reader to finish.
func (s *ffmpegSource) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// splitJPEG is a bufio.SplitFunc yielding one SOI..EOI JPEG per token. Bytes
// outside a frame are discarded.
func splitJPEG(data []byte, atEOF bool) (int, []byte, error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF || len(data) == 0 {
			return len(data), nil, nil
		}
		// A trailing 0xff may be the first half of the next marker.
		return len(data) - 1, nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}

// lockedBuffer collects stderr while the process runs.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len() > 4096 {
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}
