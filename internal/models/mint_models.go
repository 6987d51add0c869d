package models

// MintRequest 铸造请求体，六个字段全部必填（只做非空校验）
type MintRequest struct {
	Author         string `json:"author"`
	Title          string `json:"title"`
	Text           string `json:"text"`
	PublishedAt    string `json:"published_at"`
	PublishedWhere string `json:"published_where"`
	UserWallet     string `json:"user_wallet"`
}

// Metadata 上传到去中心化存储的元数据对象。
// Encryption 字段是压缩后再加密的正文密文，元数据中绝不出现明文。
type Metadata struct {
	Title          string `json:"title"`
	ImageURI       string `json:"imageUri"`
	Author         string `json:"author"`
	PublishedAt    string `json:"published_at"`
	PublishedWhere string `json:"published_where"`
	Encryption     string `json:"encryption"`
}

// MintResult 单次铸造的结构化结果。
// TokenAccountStatus 是次要状态：关联账户创建失败不影响铸造本身的成功。
type MintResult struct {
	Signature          string
	ExplorerURL        string
	AssetAddress       string
	MetadataURI        string
	TokenAccount       string
	TokenAccountStatus string
}

// MintResponse 铸造成功响应
type MintResponse struct {
	Message            string `json:"message"`
	Asset              string `json:"asset"`
	MetadataURI        string `json:"metadataUri"`
	TokenAccount       string `json:"tokenAccount"`
	TokenAccountStatus string `json:"tokenAccountStatus"`
}
