// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/lirios/ostree-upload/modules/ostree"
	"github.com/lirios/ostree-upload/pkg/transport"
	transporthttp "github.com/lirios/ostree-upload/pkg/transport/http"
)

// missingObjectsChunk keeps /missing_objects request bodies well below
// the receiver's 10 MiB cap.
const missingObjectsChunk = 100

// Options configures one push run.
type Options struct {
	RepoPath string
	URL      string
	Token    string
	Refs     []string
	Quiet    bool // suppress the progress bar
}

// ErrNothingToUpdate reports that every selected branch is already
// current on the receiver.
var ErrNothingToUpdate = fmt.Errorf("nothing to update")

// Run pushes the selected refs to the receiver: negotiate, prune,
// enumerate, filter by fingerprint, upload, promote.
func Run(ctx context.Context, opts *Options) error {
	repo, err := ostree.Open(opts.RepoPath)
	if err != nil {
		return err
	}
	pusher, err := New(repo, opts.Refs)
	if err != nil {
		return err
	}
	client, err := transporthttp.NewTransport(opts.URL, opts.Token)
	if err != nil {
		return err
	}

	logrus.Info("Receiving repository information...")
	info, err := client.Info(ctx)
	if err != nil {
		return fmt.Errorf("get repository information: %w", err)
	}
	if info.Mode != "archive" {
		return fmt.Errorf("can only push to repositories in 'archive' mode, remote is %q", info.Mode)
	}

	logrus.Info("Looking for branches to update...")
	updateRefs := pusher.CheckUpdate(info.Refs)
	if len(updateRefs) == 0 {
		fmt.Println("Nothing to update")
		return nil
	}
	status, err := client.Update(ctx, updateRefs)
	if err != nil {
		return fmt.Errorf("update refs: %w", err)
	}
	if !status.Status {
		return &NegotiationError{Message: status.Message}
	}

	if err := pusher.Prune(); err != nil {
		return err
	}
	neededObjects, err := pusher.Retrieve(ctx, updateRefs)
	if err != nil {
		return fmt.Errorf("collect commits and objects to push: %w", err)
	}

	// Wanted lists can run to thousands of objects; chunk them so no
	// request trips the receiver's body limit.
	var missingObjects []transport.NeededObject
	var chunkErr error
	chunks(neededObjects, missingObjectsChunk)(func(chunk []transport.NeededObject) bool {
		missing, err := client.MissingObjects(ctx, chunk)
		if err != nil {
			chunkErr = fmt.Errorf("check which objects need to be pushed: %w", err)
			return false
		}
		missingObjects = append(missingObjects, missing...)
		return true
	})
	if chunkErr != nil {
		return chunkErr
	}

	logrus.Infof("About to send %d objects...", len(missingObjects))
	bar := newProgress(len(missingObjects), opts.Quiet)
	for i := range missingObjects {
		object := &missingObjects[i]
		status, err := client.Upload(ctx, object)
		if err != nil {
			return fmt.Errorf("upload object %s: %w", object.ObjectName, err)
		}
		if !status.Status {
			return fmt.Errorf("upload object %s rejected: %s", object.ObjectName, status.Message)
		}
		bar.increment()
	}
	bar.wait()

	logrus.Info("Updating refs...")
	status, err = client.Done(ctx)
	if err != nil {
		return fmt.Errorf("finish push: %w", err)
	}
	if !status.Status {
		return fmt.Errorf("finish push rejected: %s", status.Message)
	}
	return nil
}

func chunks(objects []transport.NeededObject, size int) func(func([]transport.NeededObject) bool) {
	return func(yield func([]transport.NeededObject) bool) {
		for start := 0; start < len(objects); start += size {
			end := min(start+size, len(objects))
			if !yield(objects[start:end]) {
				return
			}
		}
	}
}

type progress struct {
	p   *mpb.Progress
	bar *mpb.Bar
}

func newProgress(total int, quiet bool) *progress {
	if quiet || total == 0 {
		return &progress{}
	}
	p := mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
	bar := p.New(int64(total),
		mpb.BarStyle().Lbound("[").Filler("#").Tip(">").Padding("-").Rbound("]"),
		mpb.PrependDecorators(decor.Elapsed(decor.ET_STYLE_MMSS)),
		mpb.AppendDecorators(decor.CountersNoUnit("%d/%d")),
	)
	return &progress{p: p, bar: bar}
}

func (p *progress) increment() {
	if p.bar != nil {
		p.bar.Increment()
	}
}

func (p *progress) wait() {
	if p.p != nil {
		p.p.Wait()
	}
}
