package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"

	"github.com/shandysiswandi/mailmerge/internal/mailmerge/entity"
)

var errAssetEmpty = errors.New("asset has neither content nor object key")

// ErrAssetTooLarge is returned when an attachment or banner exceeds
// mailmerge.max_asset_bytes.
var ErrAssetTooLarge = errors.New("asset exceeds the size limit")

type AssetInput struct {
	Filename    string `json:"filename" validate:"required,max=255,filename"`
	ContentType string `json:"content_type" validate:"omitempty,max=255"`
	// Content is base64 for an attachment and a data URI (or base64) for a banner.
	Content   string `json:"content"`
	ObjectKey string `json:"object_key" validate:"omitempty,max=1024"`
}

// loadAsset decodes in.Content, or reads in.ObjectKey from object storage when
// no content is given. A nil input yields a nil asset.
func (s *Usecase) loadAsset(ctx context.Context, in *AssetInput) (*entity.Asset, error) {
	if in == nil {
		return nil, nil
	}

	var (
		asset *entity.Asset
		err   error
	)
	switch {
	case strings.TrimSpace(in.Content) != "":
		asset, err = decodeAsset(in)
	case strings.TrimSpace(in.ObjectKey) != "":
		asset, err = s.repoAsset.Load(ctx, strings.TrimSpace(in.ObjectKey), s.maxAssetBytes())
		if asset != nil {
			asset.Filename = in.Filename
			if in.ContentType != "" {
				asset.ContentType = in.ContentType
			}
		}
	default:
		err = errAssetEmpty
	}
	if err != nil {
		return nil, err
	}

	if int64(len(asset.Content)) > s.maxAssetBytes() {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrAssetTooLarge, in.Filename, len(asset.Content))
	}

	return asset, nil
}

func decodeAsset(in *AssetInput) (*entity.Asset, error) {
	content := strings.TrimSpace(in.Content)
	ctype := in.ContentType

	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(content, "data:") {
		var mediaType string
		mediaType, data, err = decodeDataURI(content)
		if ctype == "" {
			ctype = mediaType
		}
	} else {
		data, err = decodeBase64(content)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", in.Filename, err)
	}

	return &entity.Asset{Filename: in.Filename, ContentType: ctype, Content: data}, nil
}

// decodeDataURI decodes an RFC 2397 "data:[<mediatype>][;base64],<data>" URI.
func decodeDataURI(uri string) (string, []byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return "", nil, errors.New("data uri has no payload separator")
	}

	isBase64 := false
	if m, found := strings.CutSuffix(meta, ";base64"); found {
		meta, isBase64 = m, true
	}

	mediaType := ""
	if meta != "" {
		mt, params, err := mime.ParseMediaType(meta)
		if err != nil {
			return "", nil, fmt.Errorf("data uri media type: %w", err)
		}
		mediaType = mime.FormatMediaType(mt, params)
	}

	if isBase64 {
		data, err := decodeBase64(payload)
		return mediaType, data, err
	}

	text, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, err
	}
	return mediaType, []byte(text), nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
