// Package gridfs implements a repository backend stored in a MongoDB GridFS
// bucket, serving "mongodb://" and "mongodb+srv://" repositories.
//
// The repository URL selects the database by path and the bucket by the
// "bucket" query parameter:
//
//	mongodb://localhost:27017/depot?bucket=releases
//
// Resource names map one-to-one onto GridFS file names. Uploading a name
// that already exists stores a new revision and removes the older ones.
package gridfs

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/depot/pkg/connector"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/repository"
)

const (
	// DefaultDatabase is used when the URL has no path.
	DefaultDatabase = "depot"
	// DefaultBucket is used when the URL has no bucket parameter.
	DefaultBucket = "artifacts"
)

// Location is the parsed form of a GridFS repository URL.
type Location struct {
	URI      string // connection string without the bucket parameter
	Database string
	Bucket   string
}

// ParseURL splits a repository URL into connection string, database and
// bucket.
func ParseURL(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "mongodb" && u.Scheme != "mongodb+srv") {
		return Location{}, errors.New(errors.ErrCodeInvalidInput, "not a mongodb repository URL: %q", raw)
	}
	q := u.Query()
	loc := Location{
		Database: strings.Trim(u.Path, "/"),
		Bucket:   q.Get("bucket"),
	}
	if loc.Database == "" {
		loc.Database = DefaultDatabase
	}
	if loc.Bucket == "" {
		loc.Bucket = DefaultBucket
	}
	q.Del("bucket")
	u.RawQuery = q.Encode()
	loc.URI = u.String()
	return loc, nil
}

// Backend stores resources in one GridFS bucket.
type Backend struct {
	client *mongo.Client
	bucket *gridfs.Bucket
	logger *log.Logger
}

var _ connector.Backend = (*Backend)(nil)

// Open is a [connector.BackendFunc] for MongoDB repositories. It connects
// and pings the server before returning.
func Open(ctx context.Context, repo repository.RemoteRepository, logger *log.Logger) (connector.Backend, error) {
	loc, err := ParseURL(repo.URL)
	if err != nil {
		return nil, err
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(loc.URI))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "connect to %s", repo.ID)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "ping %s", repo.ID)
	}
	b, err := New(client, loc.Database, loc.Bucket)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	b.logger = logger
	if logger != nil {
		logger.Debug("gridfs repository", "id", repo.ID, "database", loc.Database, "bucket", loc.Bucket)
	}
	return b, nil
}

// New creates a backend on an existing client. The backend takes ownership
// of the client and disconnects it on Close.
func New(client *mongo.Client, database, bucket string) (*Backend, error) {
	bk, err := gridfs.NewBucket(client.Database(database), options.GridFSBucket().SetName(bucket))
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucket, err)
	}
	return &Backend{client: client, bucket: bk}, nil
}

func (b *Backend) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	if err := errors.ValidatePath(name); err != nil {
		return nil, 0, err
	}
	stream, err := b.bucket.OpenDownloadStreamByName(name)
	if stderrors.Is(err, gridfs.ErrFileNotFound) {
		return nil, 0, fmt.Errorf("%s: %w", name, connector.ErrResourceMissing)
	}
	if err != nil {
		return nil, 0, err
	}
	return stream, stream.GetFile().Length, nil
}

// Put uploads a new revision of name and then prunes older revisions.
func (b *Backend) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := errors.ValidatePath(name); err != nil {
		return err
	}
	id, err := b.bucket.UploadFromStream(name, r)
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	cur, err := b.bucket.Find(bson.M{"filename": name, "_id": bson.M{"$ne": id}})
	if err != nil {
		return fmt.Errorf("list revisions of %s: %w", name, err)
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var old struct {
			ID any `bson:"_id"`
		}
		if err := cur.Decode(&old); err != nil {
			return err
		}
		if err := b.bucket.Delete(old.ID); err != nil && !stderrors.Is(err, gridfs.ErrFileNotFound) {
			if b.logger != nil {
				b.logger.Warn("could not prune old revision", "name", name, "err", err)
			}
		}
	}
	return cur.Err()
}

func (b *Backend) Exists(ctx context.Context, name string) (bool, error) {
	if err := errors.ValidatePath(name); err != nil {
		return false, err
	}
	cur, err := b.bucket.Find(bson.M{"filename": name}, options.GridFSFind().SetLimit(1))
	if err != nil {
		return false, err
	}
	defer cur.Close(ctx)
	return cur.Next(ctx), cur.Err()
}

func (b *Backend) Close() error {
	return b.client.Disconnect(context.Background())
}
