// Package obfuscation reverses the CDN's in-transit image encoding and checks
// the result against the server's declared checksum.
//
// An obfuscated payload is laid out as
//
//	[flag:1][length:4 big-endian][ciphertext:length][key]
//
// Only the first HeaderWindow bytes of the ciphertext are AES-CBC encrypted;
// the remainder is the plain image tail. The IV comes from the cpx parameter
// handed out with the image token: URL-unescaped, base64-decoded, bytes
// IVOffset to IVOffset+IVLength.
package obfuscation

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	IVOffset     = 60
	IVLength     = aes.BlockSize
	HeaderWindow = 20496

	prefixLen = 5
)

var (
	ErrCorruptPayload = errors.New("corrupt obfuscated payload")
	ErrKeyMaterial    = errors.New("invalid key material")
)

// IV extracts the initialization vector from a cpx parameter.
func IV(cpx string) ([]byte, error) {
	unescaped, err := url.QueryUnescape(cpx)
	if err != nil {
		return nil, fmt.Errorf("%w: unescape cpx: %w", ErrKeyMaterial, err)
	}
	raw, err := base64.StdEncoding.DecodeString(unescaped)
	if err != nil {
		return nil, fmt.Errorf("%w: decode cpx: %w", ErrKeyMaterial, err)
	}
	if len(raw) < IVOffset+IVLength {
		return nil, fmt.Errorf("%w: cpx is %d bytes", ErrKeyMaterial, len(raw))
	}
	iv := make([]byte, IVLength)
	copy(iv, raw[IVOffset:IVOffset+IVLength])
	return iv, nil
}

// Reverse decodes an obfuscated payload. Errors wrap ErrCorruptPayload when
// the buffer itself is malformed and ErrKeyMaterial when the cpx or key does
// not fit the cipher; neither is worth retrying with the same bytes.
func Reverse(payload []byte, cpx string) ([]byte, error) {
	iv, err := IV(cpx)
	if err != nil {
		return nil, err
	}
	if len(payload) < prefixLen {
		return nil, fmt.Errorf("%w: %d byte buffer", ErrCorruptPayload, len(payload))
	}
	if payload[0] == 0 {
		return nil, fmt.Errorf("%w: zero flag byte", ErrCorruptPayload)
	}
	n := int(binary.BigEndian.Uint32(payload[1:prefixLen]))
	if n > len(payload)-prefixLen {
		return nil, fmt.Errorf("%w: declared length %d exceeds buffer", ErrCorruptPayload, n)
	}
	content := payload[prefixLen : prefixLen+n]
	key := payload[prefixLen+n:]

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyMaterial, err)
	}

	head := content
	var tail []byte
	if len(content) > HeaderWindow {
		head, tail = content[:HeaderWindow], content[HeaderWindow:]
	}
	if len(head)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: encrypted header of %d bytes is not block aligned", ErrCorruptPayload, len(head))
	}

	out := make([]byte, len(head), len(content))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, head)
	if tail == nil {
		// a short image is encrypted whole and carries block padding
		out, err = unpad(out)
		if err != nil {
			return nil, err
		}
	}
	return append(out, tail...), nil
}

// Obfuscate is the inverse of Reverse. It exists for fixtures and for
// checking a key/cpx pair. An image of exactly HeaderWindow bytes has no
// unambiguous encoding and is rejected.
func Obfuscate(image, key []byte, cpx string) ([]byte, error) {
	if len(image) == HeaderWindow {
		return nil, fmt.Errorf("%w: image of exactly %d bytes", ErrCorruptPayload, HeaderWindow)
	}
	iv, err := IV(cpx)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyMaterial, err)
	}

	var head, tail []byte
	if len(image) > HeaderWindow {
		head = append([]byte(nil), image[:HeaderWindow]...)
		tail = image[HeaderWindow:]
	} else {
		head = pad(image)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(head, head)

	var buf bytes.Buffer
	buf.WriteByte(1)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(head)+len(tail)))
	buf.Write(head)
	buf.Write(tail)
	buf.Write(key)
	return buf.Bytes(), nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	out := make([]byte, len(b), len(b)+n)
	copy(out, b)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return b, nil
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad block padding", ErrKeyMaterial)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad block padding", ErrKeyMaterial)
		}
	}
	return b[:len(b)-n], nil
}

// Checksum is the hex MD5 of b, the form compared against the ETag header.
func Checksum(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// ChecksumMatches compares b against an ETag value. The CDN sends either a
// hex or a base64 MD5, optionally quoted or weak-prefixed.
func ChecksumMatches(etag string, b []byte) bool {
	etag = strings.TrimPrefix(strings.TrimSpace(etag), "W/")
	etag = strings.Trim(etag, `"`)
	if etag == "" {
		return false
	}
	sum := md5.Sum(b)
	if strings.EqualFold(etag, hex.EncodeToString(sum[:])) {
		return true
	}
	if raw, err := base64.StdEncoding.DecodeString(etag); err == nil {
		return bytes.Equal(raw, sum[:])
	}
	return false
}
