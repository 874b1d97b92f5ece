package imageloader

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"
	"unicode"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Kind names one interpretation of a reference string.
type Kind string

const (
	KindPath   Kind = "path"
	KindURL    Kind = "url"
	KindInline Kind = "inline"
)

// errNotThisKind means the reference is not of the kind an attempt handles.
// It is the only error on which resolution moves to the next attempt.
var errNotThisKind = errors.New("reference is not of this kind")

// Options tune a Loader.
type Options struct {
	MaxBytes     int64
	FetchTimeout time.Duration
}

// Loader resolves local paths, http(s) URLs and inline base64 payloads.
// It is safe for concurrent use when the injected resty client is.
type Loader struct {
	http     *resty.Client
	maxBytes int64
	timeout  time.Duration
	logger   *zap.Logger
}

// New builds a Loader that fetches remote images through client.
func New(client *resty.Client, opts Options, logger *zap.Logger) *Loader {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	return &Loader{
		http:     client,
		maxBytes: opts.MaxBytes,
		timeout:  opts.FetchTimeout,
		logger:   logger.Named("imageloader"),
	}
}

type attempt struct {
	kind Kind
	read func(ctx context.Context, ref string) ([]byte, error)
}

// Load resolves ref by trying, in order, a local path (leading "/"), an
// http(s) URL and an inline base64 payload. The media type always comes from
// the decoded content.
func (l *Loader) Load(ctx context.Context, ref string) (Image, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Image{}, fmt.Errorf("%w: empty reference", ErrImageUnavailable)
	}

	attempts := []attempt{
		{kind: KindPath, read: l.readPath},
		{kind: KindURL, read: l.fetchURL},
		{kind: KindInline, read: l.decodeInline},
	}
	for _, a := range attempts {
		data, err := a.read(ctx, ref)
		if errors.Is(err, errNotThisKind) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrImageUnavailable) {
				return Image{}, fmt.Errorf("%s reference: %w", a.kind, err)
			}
			return Image{}, fmt.Errorf("%s reference: %w: %w", a.kind, ErrImageUnavailable, err)
		}
		img, err := FromBytes(data, l.maxBytes)
		if err != nil {
			return Image{}, fmt.Errorf("%s reference: %w", a.kind, err)
		}
		l.logger.Debug("image resolved",
			zap.String("kind", string(a.kind)),
			zap.String("media_type", img.MediaType()),
			zap.Int("bytes", len(data)),
		)
		return img, nil
	}
	return Image{}, fmt.Errorf("%w: unrecognised reference", ErrImageUnavailable)
}

func (l *Loader) readPath(_ context.Context, ref string) ([]byte, error) {
	if !strings.HasPrefix(ref, "/") {
		return nil, errNotThisKind
	}
	f, err := os.Open(ref)
	if err != nil {
		// Base64 JPEG payloads start with "/9j/"; a name that cannot exist is not a path.
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENAMETOOLONG) || errors.Is(err, syscall.ENOTDIR) {
			l.logger.Debug("not a local path, trying next interpretation", zap.Error(err))
			return nil, errNotThisKind
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", ref)
	}
	if info.Size() > l.maxBytes {
		return nil, fmt.Errorf("%w (%d > %d bytes)", ErrImageTooLarge, info.Size(), l.maxBytes)
	}
	return io.ReadAll(io.LimitReader(f, l.maxBytes+1))
}

func (l *Loader) fetchURL(ctx context.Context, ref string) ([]byte, error) {
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errNotThisKind
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	resp, err := l.http.R().SetContext(ctx).Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("fetch %s: status %d", u.Redacted(), resp.StatusCode())
	}
	return resp.Body(), nil
}

var inlineEncodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

func (l *Loader) decodeInline(_ context.Context, ref string) ([]byte, error) {
	payload := ref
	if strings.HasPrefix(payload, "data:") {
		// The declared MIME type is discarded; content decides.
		idx := strings.IndexByte(payload, ',')
		if idx < 0 {
			return nil, errors.New("malformed data URL")
		}
		payload = payload[idx+1:]
	}
	payload = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return nil, errors.New("empty inline payload")
	}
	if int64(base64.StdEncoding.DecodedLen(len(payload))) > l.maxBytes+3 {
		return nil, fmt.Errorf("%w: inline payload", ErrImageTooLarge)
	}

	var lastErr error
	for _, enc := range inlineEncodings {
		data, err := enc.DecodeString(payload)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("decode base64: %w", lastErr)
}
