package connector

import (
	"context"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/repository"
	"github.com/matzehuels/depot/pkg/transfer"
)

// tracker carries one transfer through its lifecycle and reports each step
// to the listener.
type tracker struct {
	p           *Parallel
	res         transfer.Resource
	req         transfer.RequestType
	transferred int64
}

func (p *Parallel) track(name, file string, req transfer.RequestType) *tracker {
	return &tracker{p: p, res: transfer.NewResource(p.repo.URL, name, file, -1), req: req}
}

func (t *tracker) event(typ transfer.EventType, data []byte, err error) transfer.Event {
	return transfer.Event{
		Type:             typ,
		RequestType:      t.req,
		Resource:         t.res,
		TransferredBytes: t.transferred,
		DataBuffer:       data,
		Err:              err,
	}
}

// veto invokes a callback that may cancel the transfer. Listener panics
// count as a veto.
func (t *tracker) veto(call func(transfer.Listener) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = transfer.CancelledError(t.res, fmt.Errorf("listener panic: %v", r))
		}
	}()
	if err := call(t.p.opts.Listener); err != nil {
		return transfer.CancelledError(t.res, err)
	}
	return nil
}

func (t *tracker) initiated() error {
	e := t.event(transfer.Initiated, nil, nil)
	return t.veto(func(l transfer.Listener) error { return l.TransferInitiated(e) })
}

func (t *tracker) started() error {
	e := t.event(transfer.Started, nil, nil)
	return t.veto(func(l transfer.Listener) error { return l.TransferStarted(e) })
}

func (t *tracker) progressed(chunk []byte) error {
	t.transferred += int64(len(chunk))
	e := t.event(transfer.Progressed, chunk, nil)
	return t.veto(func(l transfer.Listener) error { return l.TransferProgressed(e) })
}

func (t *tracker) corrupted(cause error) error {
	e := t.event(transfer.Corrupted, nil, cause)
	return t.veto(func(l transfer.Listener) error { return l.TransferCorrupted(e) })
}

// finish fires the single terminal event and returns err.
func (t *tracker) finish(err error) error {
	defer func() {
		if r := recover(); r != nil {
			t.p.opts.Logger.Warn("transfer listener panicked", "resource", t.res.Name(), "panic", r)
		}
	}()
	log := t.p.opts.Logger
	if err == nil {
		log.Debug("transfer succeeded", "resource", t.res.URL(), "bytes", t.transferred)
		t.p.opts.Listener.TransferSucceeded(t.event(transfer.Succeeded, nil, nil))
		return nil
	}
	log.Debug("transfer failed", "resource", t.res.URL(), "err", err)
	t.p.opts.Listener.TransferFailed(t.event(transfer.Failed, nil, err))
	return err
}

// classify maps backend and context errors onto the transfer taxonomy.
// Errors already classified pass through.
func (t *tracker) classify(err error) error {
	var coded *errors.Error
	switch {
	case stderrors.As(err, &coded):
		return err
	case stderrors.Is(err, ErrResourceMissing):
		return transfer.NotFoundError(t.res, err)
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return transfer.CancelledError(t.res, err)
	}
	return transfer.TransferError(t.res, err)
}

// progressReader reports every chunk read through it and aborts the stream
// once the context is done or a listener vetoes.
type progressReader struct {
	ctx context.Context
	r   io.Reader
	t   *tracker
	err error
}

func (pr *progressReader) Read(b []byte) (int, error) {
	if pr.err != nil {
		return 0, pr.err
	}
	if err := pr.ctx.Err(); err != nil {
		pr.err = transfer.CancelledError(pr.t.res, err)
		return 0, pr.err
	}
	n, err := pr.r.Read(b)
	if n > 0 {
		if verr := pr.t.progressed(b[:n]); verr != nil {
			pr.err = verr
			return n, verr
		}
	}
	return n, err
}

func (p *Parallel) getArtifact(ctx context.Context, d *transfer.ArtifactDownload) {
	name := p.layout.ArtifactPath(d.Artifact)
	req := transfer.Get
	if d.ExistenceCheck {
		req = transfer.GetExistence
	}
	t := p.track(name, d.File, req)
	policy := d.ChecksumPolicy
	if policy == "" {
		policy = p.repo.Policy(d.Artifact.IsSnapshot()).ChecksumPolicy
	}

	var err error
	if d.ExistenceCheck {
		err = p.exists(ctx, t, name)
	} else {
		err = p.download(ctx, t, name, d.File, policy)
	}
	d.Err = t.finish(err)
}

func (p *Parallel) getMetadata(ctx context.Context, d *transfer.MetadataDownload) {
	name := p.layout.MetadataPath(d.Metadata)
	t := p.track(name, d.File, transfer.Get)
	policy := d.ChecksumPolicy
	if policy == "" {
		policy = p.repo.Policy(d.Metadata.Nature == artifact.Snapshot).ChecksumPolicy
	}
	d.Err = t.finish(p.download(ctx, t, name, d.File, policy))
}

func (p *Parallel) putArtifact(ctx context.Context, u *transfer.ArtifactUpload) {
	name := p.layout.ArtifactPath(u.Artifact)
	t := p.track(name, u.Artifact.File, transfer.Put)
	u.Err = t.finish(p.upload(ctx, t, name, u.Artifact.File))
}

func (p *Parallel) putMetadata(ctx context.Context, u *transfer.MetadataUpload) {
	name := p.layout.MetadataPath(u.Metadata)
	t := p.track(name, u.Metadata.File, transfer.Put)
	u.Err = t.finish(p.upload(ctx, t, name, u.Metadata.File))
}

func (p *Parallel) exists(ctx context.Context, t *tracker, name string) error {
	if err := t.initiated(); err != nil {
		return err
	}
	ok, err := p.backend.Exists(ctx, name)
	if err != nil {
		return t.classify(err)
	}
	if !ok {
		return transfer.NotFoundError(t.res, nil)
	}
	return t.started()
}

// download streams name into a temporary file next to target and renames
// it into place once the bytes and the checksum check out.
func (p *Parallel) download(ctx context.Context, t *tracker, name, target, policy string) error {
	if err := t.initiated(); err != nil {
		return err
	}
	if target == "" {
		return errors.New(errors.ErrCodeUsage, "download of %s has no target file", name)
	}
	rc, length, err := p.backend.Open(ctx, name)
	if err != nil {
		return t.classify(err)
	}
	defer rc.Close()

	t.res = t.res.WithContentLength(length)
	if err := t.started(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return transfer.TransferError(t.res, err)
	}
	tmp := target + "." + uuid.NewString() + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return transfer.TransferError(t.res, err)
	}

	h := p.opts.Checksums.New()
	pr := &progressReader{ctx: ctx, r: rc, t: t}
	_, err = io.Copy(io.MultiWriter(f, h), pr)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	switch {
	case pr.err != nil:
		err = pr.err
	case err != nil:
		err = t.classify(err)
	default:
		err = p.verify(ctx, t, name, hex.EncodeToString(h.Sum(nil)), policy)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return transfer.TransferError(t.res, err)
	}
	return nil
}

func (p *Parallel) verify(ctx context.Context, t *tracker, name, actual, policy string) error {
	if policy == repository.ChecksumIgnore {
		return nil
	}
	log := p.opts.Logger
	expected, err := p.opts.Checksums.Expected(ctx, p.backend, name)
	if err != nil {
		if policy == repository.ChecksumFail {
			return errors.Wrap(errors.ErrCodeChecksum, err, "no checksum available for %s", t.res.URL())
		}
		log.Warn("could not validate checksum", "resource", t.res.URL(), "err", err)
		return nil
	}
	if strings.EqualFold(expected, actual) {
		return nil
	}

	mismatch := transfer.ChecksumError(t.res, expected, actual)
	if err := t.corrupted(mismatch); err != nil {
		return err
	}
	if policy == repository.ChecksumFail {
		return mismatch
	}
	log.Warn("checksum mismatch", "resource", t.res.URL(), "expected", expected, "actual", actual)
	return nil
}

// upload stores file under name followed by its checksum sidecar.
func (p *Parallel) upload(ctx context.Context, t *tracker, name, file string) error {
	if err := t.initiated(); err != nil {
		return err
	}
	if file == "" {
		return errors.New(errors.ErrCodeUsage, "upload of %s has no source file", name)
	}
	f, err := os.Open(file)
	if err != nil {
		return transfer.TransferError(t.res, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return transfer.TransferError(t.res, err)
	}

	t.res = t.res.WithContentLength(info.Size())
	if err := t.started(); err != nil {
		return err
	}
	h := p.opts.Checksums.New()
	pr := &progressReader{ctx: ctx, r: io.TeeReader(f, h), t: t}
	if err := p.backend.Put(ctx, name, pr, info.Size()); err != nil {
		if pr.err != nil {
			return pr.err
		}
		return t.classify(err)
	}
	if pr.err != nil {
		return pr.err
	}

	sum := hex.EncodeToString(h.Sum(nil))
	ext := p.opts.Checksums.Extension()
	if err := p.backend.Put(ctx, name+ext, strings.NewReader(sum), int64(len(sum))); err != nil {
		return t.classify(fmt.Errorf("upload checksum: %w", err))
	}
	return nil
}
