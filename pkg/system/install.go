package system

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/descriptor"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/event"
	"github.com/matzehuels/depot/pkg/session"
)

// InstallRequest lists files to copy into the local repository. Every
// artifact and metadata item must have its File set.
type InstallRequest struct {
	Artifacts []artifact.Artifact
	Metadata  []artifact.Metadata
}

// InstallResult lists what was installed, with File pointing into the local
// repository.
type InstallResult struct {
	Artifacts []artifact.Artifact
	Metadata  []artifact.Metadata
}

// Install copies the requested files into the local repository and records
// each artifact's version in the local maven-metadata.xml of its group and
// artifact ID. Items that fail do not stop the others; their errors are
// returned together as an [*InstallError].
func (s *System) Install(ctx context.Context, sess *session.Session, req InstallRequest) (*InstallResult, error) {
	if sess == nil {
		return nil, errors.New(errors.ErrCodeUsage, "install needs a session")
	}
	res := &InstallResult{}
	var errs []error
	versions := map[string][]string{}
	var ids []string

	for _, a := range req.Artifacts {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		sess.Fire(event.New(event.ArtifactInstalling, event.WithArtifact(a), event.WithFile(a.File)))
		dst := sess.Local.ArtifactPath(a)
		err := a.Validate()
		if err == nil {
			err = install(a.File, dst)
		}
		if err != nil {
			err = errors.Wrap(errors.ErrCodeInstall, err, "install %s", a)
			errs = append(errs, err)
			sess.Fire(event.New(event.ArtifactInstalled, event.WithArtifact(a), event.WithErrors(err)))
			continue
		}
		installed := a.SetFile(dst)
		res.Artifacts = append(res.Artifacts, installed)
		sess.Fire(event.New(event.ArtifactInstalled, event.WithArtifact(installed), event.WithFile(dst)))
		s.Logger.Debug("installed", "artifact", a, "file", dst)

		id := a.ID()
		if _, ok := versions[id]; !ok {
			ids = append(ids, id)
		}
		versions[id] = append(versions[id], a.BaseVersion())
	}

	for _, id := range ids {
		a := firstWithID(res.Artifacts, id)
		md := descriptor.ArtifactMetadata(a.GroupID, a.ArtifactID)
		path := sess.Local.MetadataPath(md, "")
		sess.Fire(event.New(event.MetadataInstalling, event.WithMetadata(md), event.WithFile(path)))
		err := updateMetadata(path, a.GroupID, a.ArtifactID, versions[id])
		if err != nil {
			err = errors.Wrap(errors.ErrCodeInstall, err, "install metadata of %s", id)
			errs = append(errs, err)
		} else {
			res.Metadata = append(res.Metadata, md.SetFile(path))
		}
		sess.Fire(event.New(event.MetadataInstalled, event.WithMetadata(md.SetFile(path)), event.WithErrors(err)))
	}

	for _, m := range req.Metadata {
		path := sess.Local.MetadataPath(m, "")
		sess.Fire(event.New(event.MetadataInstalling, event.WithMetadata(m), event.WithFile(path)))
		err := install(m.File, path)
		if err != nil {
			err = errors.Wrap(errors.ErrCodeInstall, err, "install %s", m)
			errs = append(errs, err)
		} else {
			res.Metadata = append(res.Metadata, m.SetFile(path))
		}
		sess.Fire(event.New(event.MetadataInstalled, event.WithMetadata(m.SetFile(path)), event.WithErrors(err)))
	}

	if len(errs) > 0 {
		return res, &InstallError{
			Result: res,
			err:    errors.Wrap(errors.ErrCodeInstall, stderrors.Join(errs...), "%d of %d items failed", len(errs), len(req.Artifacts)+len(req.Metadata)),
		}
	}
	return res, nil
}

func firstWithID(as []artifact.Artifact, id string) artifact.Artifact {
	for _, a := range as {
		if a.ID() == id {
			return a
		}
	}
	return artifact.Artifact{}
}

// updateMetadata adds versions to the metadata file at path, creating it
// when missing.
func updateMetadata(path, groupID, artifactID string, versions []string) error {
	md, err := descriptor.ReadMetadata(path)
	switch {
	case stderrors.Is(err, os.ErrNotExist):
		md = descriptor.NewMetadata(groupID, artifactID)
	case err != nil:
		return err
	}
	now := time.Now()
	for _, v := range versions {
		md.AddVersion(v, now)
	}
	return md.Write(path)
}

// install copies src to dst through a temporary file in dst's directory.
// Copying a file onto itself is a no-op.
func install(src, dst string) error {
	if src == "" {
		return errors.New(errors.ErrCodeUsage, "no source file")
	}
	if same, _ := samePath(src, dst); same {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + "." + uuid.NewString() + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func samePath(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(ai, bi), nil
}
