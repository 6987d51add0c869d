package handler

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arikia/ctrl-x/internal/services"
)

// ---- fakes ----

type fakeRPC struct {
	accounts  map[solana.PublicKey]*rpc.GetAccountInfoResult
	sendCount int
	callCount int // 任意 RPC 调用计数（校验"无上游调用"）
}

func (f *fakeRPC) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	f.callCount++
	if res, ok := f.accounts[account]; ok {
		return res, nil
	}
	return nil, rpc.ErrNotFound
}

func (f *fakeRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	f.callCount++
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{9}, LastValidBlockHeight: 1},
	}, nil
}

func (f *fakeRPC) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	f.callCount++
	f.sendCount++
	var sig solana.Signature
	sig[0] = byte(f.sendCount)
	return sig, nil
}

func (f *fakeRPC) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.callCount++
	out := make([]*rpc.SignatureStatusesResult, len(sigs))
	for i := range sigs {
		out[i] = &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}
	}
	return &rpc.GetSignatureStatusesResult{Value: out}, nil
}

type fakeUploader struct {
	count int
}

func (f *fakeUploader) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	f.count++
	return "https://gateway.test/blob", nil
}

func (f *fakeUploader) UploadJSON(ctx context.Context, v interface{}) (string, error) {
	f.count++
	return "https://gateway.test/meta", nil
}

// ---- setup ----

func borshStr(s string) []byte {
	b := make([]byte, 4+len(s))
	binary.LittleEndian.PutUint32(b[:4], uint32(len(s)))
	copy(b[4:], s)
	return b
}

func collectionResult(t *testing.T) *rpc.GetAccountInfoResult {
	t.Helper()
	authority := solana.NewWallet().PublicKey()
	data := []byte{5} // CollectionV1 标签
	data = append(data, authority[:]...)
	data = append(data, borshStr("articles")...)
	data = append(data, borshStr("https://gateway.test/col")...)
	data = append(data, make([]byte, 8)...)

	blob := fmt.Sprintf(
		`{"context":{"slot":1},"value":{"lamports":1,"owner":%q,"data":[%q,"base64"],"executable":false,"rentEpoch":0}}`,
		services.MplCoreProgramID.String(), base64.StdEncoding.EncodeToString(data))
	var res rpc.GetAccountInfoResult
	require.NoError(t, json.Unmarshal([]byte(blob), &res))
	return &res
}

func setupRouter(t *testing.T) (*gin.Engine, *fakeRPC, *fakeUploader) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	viper.Set("content.codec", "zlib")
	viper.Set("content.encryption_key", base64.StdEncoding.EncodeToString(key))
	require.NoError(t, services.InitContent())

	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	client := &fakeRPC{accounts: make(map[solana.PublicKey]*rpc.GetAccountInfoResult)}
	uploader := &fakeUploader{}
	collection := solana.NewWallet().PublicKey()
	client.accounts[collection] = collectionResult(t)

	services.Client = client
	services.Payer = payer
	services.Collection = collection
	services.Cluster = "devnet-alpha"
	services.ImageURI = "https://gateway.test/icon"
	services.UploaderClient = uploader

	t.Cleanup(func() {
		services.Client = nil
		services.Payer = nil
		services.Collection = solana.PublicKey{}
		services.Cluster = ""
		services.ImageURI = ""
		services.UploaderClient = nil
		viper.Set("content.codec", "")
		viper.Set("content.encryption_key", "")
	})

	r := gin.New()
	RegisterRoutes(r)
	return r, client, uploader
}

func doMint(r *gin.Engine, body map[string]string) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/mint-nft", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "127.0.0.1:54321"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func validBody() map[string]string {
	return map[string]string{
		"author":          "A",
		"title":           "T",
		"text":            "hello world",
		"published_at":    "2024-01-01",
		"published_where": "X",
		"user_wallet":     solana.NewWallet().PublicKey().String(),
	}
}

// ---- tests ----

func TestMintMissingFields(t *testing.T) {
	r, client, uploader := setupRouter(t)

	for _, field := range []string{"author", "title", "text", "published_at", "published_where", "user_wallet"} {
		t.Run(field, func(t *testing.T) {
			body := validBody()
			delete(body, field)

			w := doMint(r, body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "Missing required fields")
		})
	}

	// 校验失败时不发生任何上游调用
	assert.Equal(t, 0, client.callCount)
	assert.Equal(t, 0, uploader.count)
}

func TestMintCollectionNotConfigured(t *testing.T) {
	r, client, uploader := setupRouter(t)
	services.Collection = solana.PublicKey{}

	w := doMint(r, validBody())
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Collection public key is not defined")
	assert.Equal(t, 0, client.sendCount)
	assert.Equal(t, 0, uploader.count)
}

func TestMintSignerNotConfigured(t *testing.T) {
	r, _, _ := setupRouter(t)
	services.Payer = nil

	w := doMint(r, validBody())
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Wallet secret key is not defined")
}

func TestMintMethodNotAllowed(t *testing.T) {
	r, _, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/mint-nft", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Contains(t, w.Body.String(), "Method not allowed")
}

func TestMintSuccess(t *testing.T) {
	r, client, _ := setupRouter(t)

	w := doMint(r, validBody())
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Message            string `json:"message"`
		Asset              string `json:"asset"`
		MetadataURI        string `json:"metadataUri"`
		TokenAccountStatus string `json:"tokenAccountStatus"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Contains(t, resp.Message, "Asset Created: https://solana.fm/tx/")
	assert.Contains(t, resp.Message, "?cluster=devnet-alpha")
	assert.NotEmpty(t, resp.Asset)
	assert.Equal(t, "https://gateway.test/meta", resp.MetadataURI)
	assert.Equal(t, "created", resp.TokenAccountStatus)
	assert.Equal(t, 2, client.sendCount) // 铸造 + 关联账户创建
}

func TestMintTokenAccountFailureStill200(t *testing.T) {
	r, client, _ := setupRouter(t)

	// 第二笔广播（关联账户创建）失败，铸造本身仍算成功
	failing := &failSecondSend{fakeRPC: client}
	services.Client = failing

	w := doMint(r, validBody())
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		TokenAccountStatus string `json:"tokenAccountStatus"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp.TokenAccountStatus)
}

type failSecondSend struct {
	*fakeRPC
}

func (f *failSecondSend) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	if f.sendCount >= 1 {
		f.sendCount++
		return solana.Signature{}, errors.New("simulated broadcast failure")
	}
	return f.fakeRPC.SendTransactionWithOpts(ctx, tx, opts)
}

func TestMintUpstreamFailureGeneric(t *testing.T) {
	r, client, _ := setupRouter(t)

	// collection 账户读不到 → 上游失败 → 笼统的 Mint failed
	delete(client.accounts, services.Collection)

	w := doMint(r, validBody())
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Mint failed")
	assert.NotContains(t, w.Body.String(), "not found") // 细节不外泄
}

func TestHealthz(t *testing.T) {
	r, _, _ := setupRouter(t)
	InitStartTime()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyz(t *testing.T) {
	r, _, _ := setupRouter(t)
	InitStartTime()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecordsLocalOnly(t *testing.T) {
	r, _, _ := setupRouter(t)

	// 非本地地址被拒绝
	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.RemoteAddr = "203.0.113.5:1000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 本地地址放行，但审计库未配置时返回 500
	req = httptest.NewRequest(http.MethodGet, "/records", nil)
	req.RemoteAddr = "127.0.0.1:1000"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
