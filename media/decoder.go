package media

import (
	"context"
	"crypto/aes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/kesherwa/relay"
	"github.com/kesherwa/relay/metrics"
	"github.com/kesherwa/relay/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow/util/cbcutil"
)

// MACLength is the length of the truncated HMAC-SHA256 appended to encrypted media
const MACLength = 10

// Decoder downloads and decrypts the media attached to webhook events
type Decoder struct {
	SourceHost string
	TargetHost string
	VerifyMAC  bool

	// MaxBytes caps the size of encrypted downloads, zero means no cap
	MaxBytes int64

	// ConvertWebP re-encodes WebP images as PNG
	ConvertWebP bool
}

// NewDecoder creates a new decoder configured from the passed in config
func NewDecoder(config *relay.Config) *Decoder {
	return &Decoder{
		SourceHost: config.MediaSourceHost,
		TargetHost: config.MediaTargetHost,
		VerifyMAC:  config.VerifyMediaMAC,
		MaxBytes:   config.MaxMediaBytes,

		ConvertWebP: config.ConvertWebPImages,
	}
}

// Decode downloads the encrypted blob referenced by the passed in payload and decrypts it. Any
// failure is returned as a *relay.MediaDecodeFailedError.
func (d *Decoder) Decode(ctx context.Context, event relay.EventType, payload *relay.MediaPayload) (*relay.DecodedMedia, error) {
	start := time.Now()
	fail := func(err error) error {
		return &relay.MediaDecodeFailedError{MessageID: payload.ID, Cause: err}
	}

	iv, err := base64.StdEncoding.DecodeString(payload.DecodeKeys.IV)
	if err != nil {
		return nil, fail(errors.Wrap(err, "unable to decode iv"))
	}
	cipherKey, err := base64.StdEncoding.DecodeString(payload.DecodeKeys.CipherKey)
	if err != nil {
		return nil, fail(errors.Wrap(err, "unable to decode cipher key"))
	}

	var macKey []byte
	if d.VerifyMAC {
		macKey, err = base64.StdEncoding.DecodeString(payload.DecodeKeys.MacKey)
		if err != nil || len(macKey) == 0 {
			return nil, fail(errors.New("mac key missing or invalid"))
		}
	}

	mediaURL, err := d.RewriteURL(payload.URL)
	if err != nil {
		return nil, fail(err)
	}

	blob, err := d.download(ctx, mediaURL)
	if err != nil {
		return nil, fail(err)
	}

	plaintext, err := Decrypt(cipherKey, iv, macKey, blob)
	if err != nil {
		return nil, fail(err)
	}

	mimeType := payload.Format
	if mimeType == "" {
		mimeType = mimetype.Detect(plaintext).String()
	}

	decoded := &relay.DecodedMedia{
		Data:     plaintext,
		MimeType: mimeType,
		FileName: payload.ID + "." + Extension(payload.Format),
		FileSize: len(plaintext),
	}

	if d.ConvertWebP && event == relay.EventImage && IsWebP(plaintext) {
		d.convertWebP(payload.ID, decoded)
	}

	metrics.SetMediaDecode(string(event), float64(time.Since(start))/float64(time.Millisecond), decoded.FileSize)
	logrus.WithField("comp", "media").WithField("message_id", payload.ID).WithField("file_size", decoded.FileSize).WithField("elapsed_ms", time.Since(start).Milliseconds()).Debug("media decoded")

	return decoded, nil
}

// convertWebP swaps decoded for its PNG rendition, keeping the original when conversion fails
func (d *Decoder) convertWebP(messageID string, decoded *relay.DecodedMedia) {
	converted, err := ConvertWebPToPNG(decoded.Data, MaxConvertedImageBytes)
	if err != nil {
		logrus.WithField("comp", "media").WithField("message_id", messageID).WithError(err).Warn("unable to convert webp image, keeping original")
		return
	}

	decoded.Data = converted
	decoded.MimeType = "image/png"
	decoded.FileName = messageID + ".png"
	decoded.FileSize = len(converted)
}

// RewriteURL points URLs on our source host at our target host, other URLs are left alone
func (d *Decoder) RewriteURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrapf(err, "invalid media url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.Errorf("unsupported media url scheme: %q", u.Scheme)
	}
	if d.SourceHost != "" && d.TargetHost != "" && strings.EqualFold(u.Host, d.SourceHost) {
		u.Host = d.TargetHost
	}
	return u.String(), nil
}

func (d *Decoder) download(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build media request")
	}

	// media hosts are fetched without certificate validation
	rr, err := utils.MakeInsecureHTTPRequestWithLimit(req, d.MaxBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to download media from %s", mediaURL)
	}
	return rr.Body, nil
}

// Decrypt strips the MAC suffix from blob and decrypts the rest with AES-256-CBC. When macKey is
// not empty the MAC is checked first.
func Decrypt(cipherKey, iv, macKey, blob []byte) ([]byte, error) {
	if len(iv) != aes.BlockSize {
		return nil, errors.Errorf("iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	if len(cipherKey) != 32 {
		return nil, errors.Errorf("cipher key must be 32 bytes, got %d", len(cipherKey))
	}
	if len(blob) < MACLength {
		return nil, errors.Errorf("encrypted media too short: %d bytes", len(blob))
	}

	ciphertext, mac := blob[:len(blob)-MACLength], blob[len(blob)-MACLength:]

	if len(macKey) > 0 {
		if err := VerifyMAC(macKey, iv, ciphertext, mac); err != nil {
			return nil, err
		}
	}

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.Errorf("ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}

	plaintext, err := cbcutil.Decrypt(cipherKey, iv, ciphertext)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decrypt media")
	}
	return plaintext, nil
}

// ComputeMAC returns the truncated HMAC-SHA256 of iv and ciphertext
func ComputeMAC(macKey, iv, ciphertext []byte) []byte {
	h := hmac.New(sha256.New, macKey)
	h.Write(iv)
	h.Write(ciphertext)
	return h.Sum(nil)[:MACLength]
}

// VerifyMAC checks that mac matches iv and ciphertext
func VerifyMAC(macKey, iv, ciphertext, mac []byte) error {
	if !hmac.Equal(ComputeMAC(macKey, iv, ciphertext), mac) {
		return errors.New("media mac mismatch")
	}
	return nil
}

// Extension returns the file extension for the passed in MIME type, which is its subtype
func Extension(format string) string {
	_, subtype, found := strings.Cut(format, "/")
	if !found {
		return "bin"
	}
	subtype, _, _ = strings.Cut(subtype, ";")
	subtype = strings.TrimSpace(subtype)
	if subtype == "" {
		return "bin"
	}
	return subtype
}
