package iosource

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/backy2/backy2/internal/digest"
)

// fileWorkerMultiplier sizes the hash-worker pool and channel buffers
// relative to CPU count, mirroring the dedup writer pipeline's
// ncpu*bufmul sizing convention.
const fileWorkerMultiplier = 2

// readJob is one dispatched read, carried from ReadBlock to a hash worker.
type readJob struct {
	block BlockRef
}

// FileSource is the file:// driver: reads/writes a regular file on the
// local filesystem, with a worker pool computing checksums as blocks are
// read (spec.md §4.3).
type FileSource struct {
	path   string
	hasher digest.Hasher

	rf *os.File // open for reading, backup path
	wf *os.File // open for writing, restore path

	size int64

	jobs    chan readJob
	results chan Completion
	wg      sync.WaitGroup

	closeOnce sync.Once
	workerErr chan error
}

// NewFileDriver returns a [Driver] for the file:// scheme using hasher to
// checksum blocks as they are read.
func NewFileDriver(hasher digest.Hasher) Driver {
	return func(path string) (Source, error) {
		return openFileSource(path, hasher)
	}
}

// openFileSource opens path for reading if it exists. A missing path is not
// an error: it is the normal case for a restore target, which is created
// later via OpenWriter rather than read from.
func openFileSource(path string, hasher digest.Hasher) (*FileSource, error) {
	var (
		f    *os.File
		size int64
	)

	switch fh, err := os.Open(path); {
	case err == nil:
		info, err := fh.Stat()
		if err != nil {
			_ = fh.Close()
			return nil, fmt.Errorf("iosource: stat %q: %w", path, err)
		}

		f, size = fh, info.Size()
	case errors.Is(err, os.ErrNotExist):
		// restore target: opened for writing only, via OpenWriter.
	default:
		return nil, fmt.Errorf("iosource: open %q: %w", path, err)
	}

	workers := max(1, runtime.NumCPU())
	buf := workers * fileWorkerMultiplier

	s := &FileSource{
		path:      path,
		hasher:    hasher,
		rf:        f,
		size:      size,
		jobs:      make(chan readJob, buf),
		results:   make(chan Completion, buf),
		workerErr: make(chan error, workers),
	}

	for range workers {
		s.wg.Add(1)

		go s.hashWorker()
	}

	return s, nil
}

func (s *FileSource) hashWorker() {
	defer s.wg.Done()

	for job := range s.jobs {
		data := make([]byte, job.block.Size)

		_, err := s.rf.ReadAt(data, job.block.ID*job.block.Size)
		if err != nil && !errors.Is(err, io.EOF) {
			s.workerErr <- fmt.Errorf("iosource: read block %d: %w", job.block.ID, err)
			continue
		}

		checksum := s.hasher.SumBytes(data)

		s.results <- Completion{Block: job.block, Data: data, Checksum: checksum}
	}
}

// Size implements [Source].
func (s *FileSource) Size() int64 { return s.size }

// ReadBlock implements [Source]. When sync is true the read and hash run
// inline on the calling goroutine instead of being queued (spec.md §4.3:
// scrub's sync=True path).
func (s *FileSource) ReadBlock(ref BlockRef, sync bool) error {
	if sync {
		data := make([]byte, ref.Size)

		_, err := s.rf.ReadAt(data, ref.ID*ref.Size)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("iosource: sync read block %d: %w", ref.ID, err)
		}

		s.results <- Completion{Block: ref, Data: data, Checksum: s.hasher.SumBytes(data)}

		return nil
	}

	select {
	case s.jobs <- readJob{block: ref}:
		return nil
	case err := <-s.workerErr:
		return err
	}
}

// Get implements [Source].
func (s *FileSource) Get() (Completion, error) {
	select {
	case c := <-s.results:
		return c, nil
	case err := <-s.workerErr:
		return Completion{}, err
	}
}

// OpenWriter implements [Source]. It creates (or truncates, if force) the
// target file and pre-sizes it to sizeBytes.
func (s *FileSource) OpenWriter(sizeBytes int64, force bool) error {
	flags := os.O_RDWR | os.O_CREATE

	if !force {
		if _, err := os.Stat(s.path); err == nil {
			return fmt.Errorf("iosource: target %q already exists", s.path)
		}
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(s.path, flags, 0o640)
	if err != nil {
		return fmt.Errorf("iosource: open writer %q: %w", s.path, err)
	}

	if err := f.Truncate(sizeBytes); err != nil {
		_ = f.Close()
		return fmt.Errorf("iosource: truncate %q to %d: %w", s.path, sizeBytes, err)
	}

	s.wf = f

	return nil
}

// WriteBlock implements [Source].
func (s *FileSource) WriteBlock(block BlockRef, blockSize int64, data []byte) error {
	if s.wf == nil {
		return errors.New("iosource: write block: writer not open")
	}

	_, err := s.wf.WriteAt(data, block.ID*blockSize)
	if err != nil {
		return fmt.Errorf("iosource: write block %d: %w", block.ID, err)
	}

	return nil
}

// Close implements [Source]: stops accepting new reads, drains the worker
// pool, and closes any open file handles.
func (s *FileSource) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.jobs)
		s.wg.Wait()
		close(s.results)

		var errs []error

		if s.rf != nil {
			if err := s.rf.Close(); err != nil {
				errs = append(errs, err)
			}
		}

		if s.wf != nil {
			if err := s.wf.Sync(); err != nil {
				errs = append(errs, err)
			}

			if err := s.wf.Close(); err != nil {
				errs = append(errs, err)
			}
		}

		closeErr = errors.Join(errs...)
	})

	return closeErr
}

var _ Source = (*FileSource)(nil)
