package services

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arikia/ctrl-x/internal/models"
)

func initTestContent(t *testing.T) {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	viper.Set("content.codec", "zlib")
	viper.Set("content.encryption_key", base64.StdEncoding.EncodeToString(key))
	require.NoError(t, InitContent())

	t.Cleanup(func() {
		viper.Set("content.codec", "")
		viper.Set("content.encryption_key", "")
		ContentCodec = nil
		aead = nil
	})
}

func TestPrepareTextRoundTrip(t *testing.T) {
	initTestContent(t)

	text := "hello world, this is an article body long enough for zlib to do something useful. " +
		"hello world, hello world, hello world."

	encryption, err := PrepareText(text)
	require.NoError(t, err)
	assert.NotContains(t, encryption, "hello world")

	// 文档中的逆向操作：解密 → base64 解码 → 解压
	decrypted, err := DecryptText(encryption)
	require.NoError(t, err)
	compressed, err := base64.StdEncoding.DecodeString(decrypted)
	require.NoError(t, err)
	recovered, err := ContentCodec.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, text, string(recovered))
}

func TestEncryptTextUniqueNonce(t *testing.T) {
	initTestContent(t)

	a, err := EncryptText("same input")
	require.NoError(t, err)
	b, err := EncryptText("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptTextRejectsGarbage(t *testing.T) {
	initTestContent(t)

	_, err := DecryptText("not base64 at all!!!")
	assert.Error(t, err)

	_, err = DecryptText(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestInitContentErrors(t *testing.T) {
	viper.Set("content.codec", "brotli")
	viper.Set("content.encryption_key", base64.StdEncoding.EncodeToString(make([]byte, 32)))
	assert.Error(t, InitContent())

	viper.Set("content.codec", "zlib")
	viper.Set("content.encryption_key", "")
	assert.Error(t, InitContent())

	viper.Set("content.encryption_key", base64.StdEncoding.EncodeToString([]byte("too short")))
	assert.Error(t, InitContent())

	viper.Set("content.codec", "")
	viper.Set("content.encryption_key", "")
}

func TestBuildMetadataNoPlaintext(t *testing.T) {
	initTestContent(t)

	req := &models.MintRequest{
		Author:         "A",
		Title:          "T",
		Text:           "secret plaintext body",
		PublishedAt:    "2024-01-01",
		PublishedWhere: "X",
		UserWallet:     "wallet",
	}
	encryption, err := PrepareText(req.Text)
	require.NoError(t, err)

	meta := BuildMetadata(req, "https://gateway/img", encryption)
	assert.Equal(t, "T", meta.Title)
	assert.Equal(t, "A", meta.Author)
	assert.Equal(t, "2024-01-01", meta.PublishedAt)
	assert.Equal(t, "X", meta.PublishedWhere)
	assert.Equal(t, "https://gateway/img", meta.ImageURI)
	assert.Equal(t, encryption, meta.Encryption)
	assert.NotContains(t, meta.Encryption, "secret plaintext body")
}
