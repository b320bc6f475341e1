package system

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/descriptor"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/event"
	"github.com/matzehuels/depot/pkg/repository"
	"github.com/matzehuels/depot/pkg/session"
	"github.com/matzehuels/depot/pkg/transfer"
)

// DeployRequest lists files to upload to Repository. Every artifact and
// metadata item must have its File set.
type DeployRequest struct {
	Repository repository.RemoteRepository
	Artifacts  []artifact.Artifact
	Metadata   []artifact.Metadata
}

// DeployResult lists what was uploaded, including the maven-metadata.xml
// files updated for the deployed versions.
type DeployResult struct {
	Artifacts []artifact.Artifact
	Metadata  []artifact.Metadata
}

// Deploy uploads the requested files to one repository.
//
// The repository's maven-metadata.xml of each deployed group and artifact ID
// is downloaded, extended with the new versions and uploaded in the same
// batch as the artifacts. Item failures are aggregated into a
// [*DeploymentError]; the successful items are still listed in the result.
func (s *System) Deploy(ctx context.Context, sess *session.Session, req DeployRequest) (*DeployResult, error) {
	if sess == nil {
		return nil, errors.New(errors.ErrCodeUsage, "deploy needs a session")
	}
	if err := req.Repository.Validate(); err != nil {
		return nil, err
	}
	repo := req.Repository
	conn, err := sess.Connector(ctx, s.Manager, repo)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDeployment, err, "deploy to %s", repo.ID)
	}

	res := &DeployResult{}
	var errs []error
	var uploads []*transfer.ArtifactUpload
	versions := map[string][]string{}
	var ids []string
	for _, a := range req.Artifacts {
		sess.Fire(event.New(event.ArtifactDeploying, event.WithArtifact(a), event.WithRepository(repo), event.WithFile(a.File)))
		err := a.Validate()
		if err == nil {
			_, err = os.Stat(a.File)
		}
		if err != nil {
			err = errors.Wrap(errors.ErrCodeDeployment, err, "deploy %s", a)
			errs = append(errs, err)
			sess.Fire(event.New(event.ArtifactDeployed, event.WithArtifact(a), event.WithRepository(repo), event.WithErrors(err)))
			continue
		}
		uploads = append(uploads, &transfer.ArtifactUpload{Artifact: a})
		id := a.ID()
		if _, ok := versions[id]; !ok {
			ids = append(ids, id)
		}
		versions[id] = append(versions[id], a.BaseVersion())
	}

	staging, err := os.MkdirTemp("", "depot-deploy-")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDeployment, err, "create staging directory")
	}
	defer os.RemoveAll(staging)

	var mdUploads []*transfer.MetadataUpload
	for _, m := range req.Metadata {
		sess.Fire(event.New(event.MetadataDeploying, event.WithMetadata(m), event.WithRepository(repo), event.WithFile(m.File)))
		mdUploads = append(mdUploads, &transfer.MetadataUpload{Metadata: m})
	}
	for i, id := range ids {
		u := uploads[indexWithID(uploads, id)]
		md := descriptor.ArtifactMetadata(u.Artifact.GroupID, u.Artifact.ArtifactID)
		file := filepath.Join(staging, strconv.Itoa(i), descriptor.MetadataFile)
		sess.Fire(event.New(event.MetadataDeploying, event.WithMetadata(md), event.WithRepository(repo), event.WithFile(file)))
		if err := s.mergeRemote(ctx, conn, md, file, versions[id]); err != nil {
			err = errors.Wrap(errors.ErrCodeDeployment, err, "prepare metadata of %s", id)
			errs = append(errs, err)
			sess.Fire(event.New(event.MetadataDeployed, event.WithMetadata(md), event.WithRepository(repo), event.WithErrors(err)))
			continue
		}
		mdUploads = append(mdUploads, &transfer.MetadataUpload{Metadata: md.SetFile(file)})
	}

	if len(uploads) > 0 || len(mdUploads) > 0 {
		if err := conn.Put(ctx, uploads, mdUploads); err != nil {
			return res, &DeploymentError{Result: res, err: errors.Wrap(errors.ErrCodeDeployment, err, "deploy to %s", repo.ID)}
		}
	}
	for _, u := range uploads {
		if u.Err != nil {
			errs = append(errs, u.Err)
		} else {
			res.Artifacts = append(res.Artifacts, u.Artifact)
		}
		sess.Fire(event.New(event.ArtifactDeployed, event.WithArtifact(u.Artifact), event.WithRepository(repo), event.WithErrors(u.Err)))
	}
	for _, u := range mdUploads {
		if u.Err != nil {
			errs = append(errs, u.Err)
		} else {
			res.Metadata = append(res.Metadata, u.Metadata)
		}
		sess.Fire(event.New(event.MetadataDeployed, event.WithMetadata(u.Metadata), event.WithRepository(repo), event.WithErrors(u.Err)))
	}
	s.Logger.Debug("deployed", "repository", repo.ID, "artifacts", len(res.Artifacts), "metadata", len(res.Metadata))

	if len(errs) > 0 {
		return res, &DeploymentError{
			Result: res,
			err:    errors.Wrap(errors.ErrCodeDeployment, stderrors.Join(errs...), "deploy to %s", repo.ID),
		}
	}
	return res, nil
}

func indexWithID(us []*transfer.ArtifactUpload, id string) int {
	for i, u := range us {
		if u.Artifact.ID() == id {
			return i
		}
	}
	return -1
}

// mergeRemote writes to file the repository's copy of md extended with
// versions. A repository without the file starts from empty metadata.
func (s *System) mergeRemote(ctx context.Context, conn transfer.Connector, md artifact.Metadata, file string, versions []string) error {
	d := &transfer.MetadataDownload{Metadata: md, File: file, ChecksumPolicy: transfer.ChecksumWarn, RequestContext: "deploy"}
	if err := conn.Get(ctx, nil, []*transfer.MetadataDownload{d}); err != nil {
		return err
	}
	merged := descriptor.NewMetadata(md.GroupID, md.ArtifactID)
	switch {
	case d.Err == nil:
		remote, err := descriptor.ReadMetadata(file)
		if err != nil {
			return err
		}
		merged = remote
	case !errors.Is(d.Err, errors.ErrCodeNotFound):
		return d.Err
	}
	now := time.Now()
	for _, v := range versions {
		merged.AddVersion(v, now)
	}
	return merged.Write(file)
}
