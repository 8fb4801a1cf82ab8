package main

import (
	"bufio"
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/hpcloud/tail"
	"github.com/hyp3rd/ewrap"
	"golang.org/x/sync/errgroup"

	"github.com/hyp3rd/ddlogger"
	"github.com/hyp3rd/ddlogger/pkg/adapter"
	"github.com/hyp3rd/ddlogger/pkg/log"
)

// scannerBufferSize caps a single input line; longer lines fail the scan.
const scannerBufferSize = 4 * 1024 * 1024

func moduleFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// readerSource ships every non-empty line of r. The scan runs on its own
// goroutine so a signal does not wait for the next line.
func readerSource(r io.Reader, template ddlogger.Record) source {
	return func(ctx context.Context, logs *adapter.Adapter, _ log.Logger) error {
		done := make(chan error, 1)

		go func() {
			done <- scanLines(r, logs, template)
		}()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func scanLines(r io.Reader, logs *adapter.Adapter, template ddlogger.Record) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), scannerBufferSize)

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		record := template
		record.Message = line

		err := logs.Write(record)
		if err != nil {
			return err
		}
	}

	err := scanner.Err()
	if err != nil {
		return ewrap.Wrap(ddlogger.ErrIO, err.Error())
	}

	return nil
}

// tailSource follows every path concurrently until ctx is done.
func tailSource(paths []string, templates []ddlogger.Record, fromStart bool) source {
	return func(ctx context.Context, logs *adapter.Adapter, logger log.Logger) error {
		group, groupCtx := errgroup.WithContext(ctx)

		for i, path := range paths {
			group.Go(func() error {
				return follow(groupCtx, path, fromStart, logs, templates[i], logger)
			})
		}

		return group.Wait()
	}
}

func follow(ctx context.Context, path string, fromStart bool, logs *adapter.Adapter, template ddlogger.Record, logger log.Logger) error {
	whence := io.SeekEnd
	if fromStart {
		whence = io.SeekStart
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: &tail.SeekInfo{Offset: 0, Whence: whence},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		return ewrap.Wrap(ddlogger.ErrIO, "failed to follow file").
			WithMetadata("path", path)
	}

	defer t.Cleanup()

	logger.Info("following file", log.String("path", path))

	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()

			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}

			if line.Err != nil {
				logger.Warn("tail error", log.String("path", path), log.Err(line.Err))

				continue
			}

			text := strings.TrimSuffix(line.Text, "\r")
			if text == "" {
				continue
			}

			record := template
			record.Message = text

			err := logs.Write(record)
			if err != nil {
				_ = t.Stop()

				return err
			}
		}
	}
}
