package services

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/Arikia/ctrl-x/internal/db"
	"github.com/Arikia/ctrl-x/internal/models"
	"github.com/Arikia/ctrl-x/utils"
)

// RPCClient 是铸造流程用到的 RPC 子集，*rpc.Client 直接满足，测试用假实现替换
type RPCClient interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

var (
	Client     RPCClient
	Payer      solana.PrivateKey // 服务签名私钥（铸造与代付的 authority）
	Collection solana.PublicKey  // 预先创建的 collection 地址
	Cluster    string            // 浏览器链接里的 cluster 后缀
	ImageURI   string            // 静态图片内容地址，留空则每次请求上传默认图标
)

var (
	ErrSignerNotConfigured     = errors.New("wallet secret not configured")
	ErrCollectionNotConfigured = errors.New("collection pubkey not configured")
	ErrCollectionFetchFailed   = errors.New("collection fetch failed")
	ErrBroadcastFailed         = errors.New("broadcast failed")
	ErrConfirmTimeout          = errors.New("confirmation timeout")
)

// MplCoreProgramID mpl-core 程序地址
var MplCoreProgramID = solana.MustPublicKeyFromBase58("CoREENxT6tW1HoK8ypY1SxRMZTcVPm7R94rH4PZNhX7d")

// mpl-core 账户类型标签（账户数据第一个字节）
const collectionV1Key = 5

// 关联账户的次要状态，创建失败不影响整体铸造结果
const (
	TokenAccountExisting = "existing" // 账户已在链上，无需创建
	TokenAccountCreated  = "created"  // 本次请求创建成功
	TokenAccountFailed   = "failed"   // 创建交易失败（已记录日志）
	TokenAccountUnknown  = "unknown"  // 探测读取失败，为避免重复创建不盲目提交
)

// 默认 NFT 图标（1x1 PNG），仅在未配置 nft.image_uri 时上传
var defaultIcon = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

// InitSolana initializes the RPC client and the service signer from config.
// It reads solana.rpc_url and solana.wallet_secret (a JSON byte array, the
// Solana CLI keypair format). Both are required and parsed exactly once at
// process start. solana.collection_pubkey is optional here: a missing
// collection is a per-request configuration error, not a startup failure.
func InitSolana() error {
	rpcURL := viper.GetString("solana.rpc_url")
	if rpcURL == "" {
		return errors.New("solana.rpc_url is empty in config")
	}

	walletSecret := viper.GetString("solana.wallet_secret")
	if walletSecret == "" {
		return errors.New("solana.wallet_secret is empty in config")
	}

	Client = rpc.New(rpcURL)

	pk, err := utils.ParseSecretKeyJSON(walletSecret)
	if err != nil {
		return errors.New("failed to parse solana.wallet_secret: " + err.Error())
	}
	Payer = pk

	// collection 未配置时不阻塞启动，铸造请求会收到针对性的 500
	collection := viper.GetString("solana.collection_pubkey")
	if collection != "" {
		pub, err := solana.PublicKeyFromBase58(collection)
		if err != nil {
			return errors.New("failed to parse solana.collection_pubkey as base58: " + err.Error())
		}
		Collection = pub
	} else {
		log.Println("[WARN] solana.collection_pubkey 未配置，铸造接口暂不可用")
	}

	Cluster = viper.GetString("solana.cluster")
	if Cluster == "" {
		Cluster = "devnet-alpha"
	}

	ImageURI = viper.GetString("nft.image_uri")

	return nil
}

// GetPayerAddress 返回服务签名账户地址（Payer 的公钥地址）
func GetPayerAddress() string {
	var pubkey solana.PublicKey
	var ok bool

	// 使用匿名函数和 recover 安全地获取公钥
	func() {
		defer func() {
			if r := recover(); r != nil {
				// panic 被捕获，说明 Payer 未正确初始化
				ok = false
			}
		}()
		pubkey = Payer.PublicKey()
		ok = true
	}()

	if !ok || pubkey.IsZero() {
		return ""
	}
	return pubkey.String()
}

// SignerReady 签名私钥是否已加载
func SignerReady() bool {
	return len(Payer) > 0 && Client != nil
}

// CollectionReady collection 地址是否已配置
func CollectionReady() bool {
	return !Collection.IsZero()
}

// collectionAccount mpl-core CollectionV1 账户数据（去掉首字节 key 标签后按 borsh 解码）
type collectionAccount struct {
	UpdateAuthority solana.PublicKey
	Name            string
	URI             string
	NumMinted       uint32
	CurrentSize     uint32
}

// MintArticle 执行一次完整铸造：准备内容、上传元数据、提交铸造交易、
// 尽力确保用户钱包的关联账户存在。每个外部调用只尝试一次，任何一步失败
// 都中止请求（关联账户创建除外，它的失败只体现在 TokenAccountStatus 上）。
func MintArticle(ctx context.Context, req *models.MintRequest) (*models.MintResult, error) {
	if !SignerReady() {
		return nil, ErrSignerNotConfigured
	}
	if !CollectionReady() {
		return nil, ErrCollectionNotConfigured
	}
	if UploaderClient == nil {
		return nil, ErrStorageNotConfigured
	}

	userWallet, err := solana.PublicKeyFromBase58(req.UserWallet)
	if err != nil {
		return nil, fmt.Errorf("invalid user wallet: %w", err)
	}

	// 每次请求生成全新的资产密钥对，绝不复用
	asset, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, err
	}
	assetPub := asset.PublicKey()
	log.Printf("资产地址: %s", assetPub.String())

	// 获取 collection，校验其确实是 mpl-core CollectionV1 账户
	col, err := fetchCollection(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCollectionFetchFailed, err)
	}
	log.Printf("collection: %s (%s)", col.Name, Collection.String())

	// 图片地址：优先使用配置的静态地址，否则上传默认图标
	// （未配置时每次请求都会重新上传，链上按内容寻址不会重复占用）
	imageURI := ImageURI
	if imageURI == "" {
		imageURI, err = UploaderClient.Upload(ctx, defaultIcon, "image/png")
		if err != nil {
			return nil, err
		}
	}

	// 压缩并加密正文，元数据中只放密文
	encryption, err := PrepareText(req.Text)
	if err != nil {
		return nil, err
	}

	// 上传元数据，拿到内容地址
	metadata := BuildMetadata(req, imageURI, encryption)
	metadataURI, err := UploaderClient.UploadJSON(ctx, metadata)
	if err != nil {
		return nil, err
	}
	log.Printf("元数据地址: %s", metadataURI)

	// 提交铸造交易并等待确认
	inst := buildCreateInstruction(assetPub, req.Title, metadataURI)
	sig, err := sendAndConfirm(ctx, []solana.Instruction{inst}, asset)
	if err != nil {
		return nil, err
	}
	log.Printf("铸造成功，交易签名: %s", sig.String())

	// 确保用户钱包存在接收账户（尽力而为，失败不影响铸造结果）
	tokenAccount, tokenStatus := ensureTokenAccount(ctx, assetPub, userWallet)

	result := &models.MintResult{
		Signature:          sig.String(),
		ExplorerURL:        utils.ExplorerTxURL(sig, Cluster),
		AssetAddress:       assetPub.String(),
		MetadataURI:        metadataURI,
		TokenAccount:       tokenAccount,
		TokenAccountStatus: tokenStatus,
	}

	// 审计记录：尽力写入，失败只记日志
	if db.DB != nil {
		rec := &models.MintRecord{
			RequestID:          uuid.NewString(),
			AssetAddress:       result.AssetAddress,
			Collection:         Collection.String(),
			Name:               req.Title,
			MetadataURI:        metadataURI,
			UserWallet:         req.UserWallet,
			TXSignature:        result.Signature,
			TokenAccount:       tokenAccount,
			TokenAccountStatus: tokenStatus,
			Status:             "pending",
		}
		if err := db.SaveMintRecord(db.DB, rec); err != nil {
			log.Printf("[WARN] 保存铸造记录失败: %v", err)
		}
	}

	return result, nil
}

// fetchCollection 读取并解析配置的 collection 账户
func fetchCollection(ctx context.Context) (*collectionAccount, error) {
	res, err := Client.GetAccountInfo(ctx, Collection)
	if err != nil {
		return nil, err
	}
	acct := res.Value
	if acct == nil {
		return nil, errors.New("collection account not found")
	}
	if !acct.Owner.Equals(MplCoreProgramID) {
		return nil, fmt.Errorf("collection account owned by %s, not mpl-core", acct.Owner.String())
	}
	return parseCollectionAccount(acct.Data.GetBinary())
}

func parseCollectionAccount(data []byte) (*collectionAccount, error) {
	if len(data) == 0 || data[0] != collectionV1Key {
		return nil, errors.New("account is not a CollectionV1")
	}
	var col collectionAccount
	if err := bin.NewBorshDecoder(data[1:]).Decode(&col); err != nil {
		return nil, fmt.Errorf("failed to decode collection account: %v", err)
	}
	return &col, nil
}

// borshString borsh 字符串编码：u32 长度（little-endian）+ 原始字节
func borshString(s string) []byte {
	b := make([]byte, 4+len(s))
	binary.LittleEndian.PutUint32(b[:4], uint32(len(s)))
	copy(b[4:], s)
	return b
}

// buildCreateInstruction 构建 mpl-core CreateV1 指令。
// 指令数据格式：
//   - instruction discriminator: 0 (CreateV1)
//   - data_state: 1 byte (0 = AccountState)
//   - name: borsh string
//   - uri: borsh string
//   - plugins: Option<Vec<PluginAuthorityPair>> = None (1 byte)
//   - external_plugin_adapters: Option<Vec<...>> = None (1 byte)
//
// 可选账户缺省时按 mpl-core 约定用程序地址自身占位。
func buildCreateInstruction(asset solana.PublicKey, name, uri string) solana.Instruction {
	data := []byte{0, 0} // CreateV1 + DataState::AccountState
	data = append(data, borshString(name)...)
	data = append(data, borshString(uri)...)
	data = append(data, 0, 0) // plugins: None, external_plugin_adapters: None

	payerPub := Payer.PublicKey()
	none := MplCoreProgramID

	accounts := solana.AccountMetaSlice{
		{PublicKey: asset, IsSigner: true, IsWritable: true},               // 新资产
		{PublicKey: Collection, IsSigner: false, IsWritable: true},         // collection
		{PublicKey: none, IsSigner: false, IsWritable: false},              // authority（缺省为 payer）
		{PublicKey: payerPub, IsSigner: true, IsWritable: true},            // payer
		{PublicKey: none, IsSigner: false, IsWritable: false},              // owner（缺省为 payer）
		{PublicKey: none, IsSigner: false, IsWritable: false},              // update authority（由 collection 决定）
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: none, IsSigner: false, IsWritable: false},              // log wrapper
	}

	return solana.NewInstruction(MplCoreProgramID, accounts, data)
}

// sendAndConfirm 组交易、签名、广播一次并轮询确认。
// extraSigners 是除 Payer 外需要签名的私钥（如新资产的密钥对）。
func sendAndConfirm(ctx context.Context, instructions []solana.Instruction, extraSigners ...solana.PrivateKey) (solana.Signature, error) {
	bh, err := Client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		// Finalized 失败时退回 Confirmed
		bh, err = Client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
		if err != nil {
			return solana.Signature{}, fmt.Errorf("failed to get latest blockhash: %v", err)
		}
	}

	payerPub := Payer.PublicKey()
	tx, err := solana.NewTransaction(instructions, bh.Value.Blockhash, solana.TransactionPayer(payerPub))
	if err != nil {
		return solana.Signature{}, err
	}

	_, err = tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(payerPub) {
			return &Payer
		}
		for i := range extraSigners {
			if pk.Equals(extraSigners[i].PublicKey()) {
				return &extraSigners[i]
			}
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sign failed: %v", err)
	}

	// 只广播一次，不做重试（blockhash 是新取的，失败直接回报）
	sig, err := Client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
	}

	if err := waitForConfirmation(ctx, sig); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

// waitForConfirmation 轮询签名状态直到 confirmed/finalized，约 60 秒超时
func waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	const maxAttempts = 30
	for i := 0; i < maxAttempts; i++ {
		statuses, err := Client.GetSignatureStatuses(ctx, false, sig)
		if err == nil && statuses != nil && len(statuses.Value) > 0 && statuses.Value[0] != nil {
			status := statuses.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction failed on chain: %v", status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return fmt.Errorf("%w: %s", ErrConfirmTimeout, sig.String())
}

// ensureTokenAccount 计算 (资产, 用户钱包) 的关联账户地址，不存在则创建。
// 状态机只有两个确定状态：存在（不动作）、确认缺失（提交一次创建交易）。
// 读取失败既不算存在也不算缺失，返回 unknown 且不提交创建交易，
// 避免把瞬时 RPC 错误当成账户缺失。所有失败都只记日志，不影响铸造结果。
func ensureTokenAccount(ctx context.Context, asset, owner solana.PublicKey) (string, string) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, asset)
	if err != nil {
		log.Printf("[WARN] 推导关联账户地址失败: %v", err)
		return "", TokenAccountUnknown
	}

	_, err = Client.GetAccountInfo(ctx, ata)
	if err == nil {
		log.Printf("关联账户已存在: %s", ata.String())
		return ata.String(), TokenAccountExisting
	}
	if !errors.Is(err, rpc.ErrNotFound) {
		// 读取失败 ≠ 账户缺失
		log.Printf("[WARN] 关联账户探测失败（跳过创建）: %v", err)
		return ata.String(), TokenAccountUnknown
	}

	log.Printf("关联账户不存在，开始创建: %s", ata.String())
	inst, err := associatedtokenaccount.NewCreateInstruction(
		Payer.PublicKey(), // 创建费用由服务账户代付
		owner,             // 接收资产的用户钱包
		asset,             // mint 地址（新资产）
	).ValidateAndBuild()
	if err != nil {
		log.Printf("[WARN] 构建关联账户创建指令失败: %v", err)
		return ata.String(), TokenAccountFailed
	}

	sig, err := sendAndConfirm(ctx, []solana.Instruction{inst})
	if err != nil {
		log.Printf("[WARN] 关联账户创建失败: %v", err)
		return ata.String(), TokenAccountFailed
	}
	log.Printf("关联账户创建成功: %s", sig.String())
	return ata.String(), TokenAccountCreated
}
