package security

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/pquerna/otp"
)

// ProvisioningQRCode renders an otpauth:// URI as a PNG image.
func ProvisioningQRCode(uri string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse provisioning uri: %w", err)
	}
	img, err := key.Image(size, size)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return buf.Bytes(), nil
}
