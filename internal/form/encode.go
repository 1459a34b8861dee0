package form

import (
	"context"
	"encoding/base64"
	"io"
	"slices"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/yakoovad/people-drive/internal/model"
	"golang.org/x/sync/errgroup"
)

// Encode reads every upload, checks its detected content type against the
// accept list of its document kind and returns the base64 form. The first
// failure cancels the remaining reads.
func Encode(ctx context.Context, files map[model.DocumentKind]*Upload, maxSize int64) (map[model.DocumentKind]*model.EncodedFile, error) {
	var (
		mu  sync.Mutex
		out = make(map[model.DocumentKind]*model.EncodedFile, len(files))
	)

	g, ctx := errgroup.WithContext(ctx)
	for kind, up := range files {
		if up == nil {
			continue
		}
		g.Go(func() error {
			enc, err := encodeOne(ctx, kind, up, maxSize)
			if err != nil {
				return err
			}
			mu.Lock()
			out[kind] = enc
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeOne(ctx context.Context, kind model.DocumentKind, up *Upload, maxSize int64) (*model.EncodedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rc, err := up.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", kind)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxSize+1))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", kind)
	}
	if int64(len(data)) > maxSize {
		verr := &ValidationError{}
		verr.add(string(kind), "exceeds the size limit")
		return nil, verr
	}

	mt := mimetype.Detect(data)
	if !slices.ContainsFunc(kind.Accepts(), mt.Is) {
		verr := &ValidationError{}
		verr.add(string(kind), "has unsupported type "+mt.String())
		return nil, verr
	}

	return &model.EncodedFile{
		Name:   up.Name,
		Type:   mt.String(),
		Base64: base64.StdEncoding.EncodeToString(data),
	}, nil
}
