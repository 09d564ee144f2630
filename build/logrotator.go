package build

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
	"github.com/klauspost/compress/zstd"
)

const (
	// Gzip is the default compressor.
	Gzip = "gzip"

	// Zstd is a modern compressor that compresses better than Gzip, in
	// less time.
	Zstd = "zstd"
)

// logCompressors maps the identifier for each supported compression
// algorithm to the extension used for the compressed log files.
var logCompressors = map[string]string{
	Gzip: "gz",
	Zstd: "zst",
}

// SupportedLogCompressor returns whether or not logCompressor is a supported
// compression algorithm for log files.
func SupportedLogCompressor(logCompressor string) bool {
	_, ok := logCompressors[logCompressor]

	return ok
}

// RotatingLogWriter is an io.Writer that feeds a size based log file
// rotator running in its own goroutine.
type RotatingLogWriter struct {
	pipe    *io.PipeWriter
	rotator *rotator.Rotator
	done    chan struct{}
}

// NewRotatingLogWriter creates the log file directory and starts rotating
// logFile according to cfg. Close must be called on shutdown to flush the
// last lines.
func NewRotatingLogWriter(cfg *FileLoggerConfig,
	logFile string) (*RotatingLogWriter, error) {

	if !SupportedLogCompressor(cfg.Compressor) {
		return nil, fmt.Errorf("unknown log compressor: %v",
			cfg.Compressor)
	}

	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w",
			err)
	}

	r, err := rotator.New(
		logFile, int64(cfg.MaxLogFileSize*1024), false,
		cfg.MaxLogFiles,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file rotator: %w", err)
	}

	var c rotator.Compressor
	switch cfg.Compressor {
	case Gzip:
		c = gzip.NewWriter(nil)

	case Zstd:
		c, err = zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd "+
				"compressor: %w", err)
		}
	}
	r.SetCompressor(c, logCompressors[cfg.Compressor])

	pr, pw := io.Pipe()
	w := &RotatingLogWriter{
		pipe:    pw,
		rotator: r,
		done:    make(chan struct{}),
	}

	// Errors during rotation, such as a full disk, must not take the
	// process down, so they are only reported on stderr.
	go func() {
		defer close(w.done)

		if err := r.Run(pr); err != nil {
			_, _ = fmt.Fprintf(os.Stderr,
				"failed to run file rotator: %v\n", err)
		}
	}()

	return w, nil
}

// Write sends b to the rotator.
func (w *RotatingLogWriter) Write(b []byte) (int, error) {
	return w.pipe.Write(b)
}

// Close stops the rotator after it has written everything already sent.
func (w *RotatingLogWriter) Close() error {
	err := w.pipe.Close()
	<-w.done

	// Run may already have closed the file on EOF.
	_ = w.rotator.Close()

	return err
}
