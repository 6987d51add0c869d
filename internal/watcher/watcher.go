package watcher

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"gorm.io/gorm"

	"github.com/Arikia/ctrl-x/internal/db"
	"github.com/Arikia/ctrl-x/utils"
)

// Watcher 把审计库中 pending 的铸造记录推进到 confirmed/failed。
// 纯观察者：不影响请求处理，铸造结果以链上为准。
type Watcher struct {
	client     *rpc.Client
	wsClient   *ws.Client
	collection solana.PublicKey
	db         *gorm.DB
	ctx        context.Context
}

// Start 启动确认观察者。配置了 wsURL 时订阅提及 collection 的日志实时确认，
// 同时保留轮询兜底（WebSocket 断连或订阅前产生的记录）。阻塞直到 ctx 取消。
func Start(ctx context.Context, dbConn *gorm.DB, rpcURL, wsURL string, collection solana.PublicKey, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	w := &Watcher{
		client:     rpc.New(rpcURL),
		collection: collection,
		db:         dbConn,
		ctx:        ctx,
	}

	if wsURL != "" {
		wsClient, err := ws.Connect(ctx, wsURL)
		if err != nil {
			// WebSocket 连不上不致命，退化为纯轮询
			utils.DefaultLogger.Warn("WebSocket 连接失败，观察者退化为轮询: %v", err)
		} else {
			w.wsClient = wsClient
			defer wsClient.Close()
			go w.subscribeLogs()
		}
	}

	utils.DefaultLogger.Info("确认观察者启动，collection: %s，轮询间隔: %s", collection.String(), interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			utils.DefaultLogger.Info("确认观察者停止")
			return
		case <-ticker.C:
			w.pollPending()
		}
	}
}

// subscribeLogs 订阅提及 collection 地址的交易日志（mentions 过滤器），
// 收到签名后立即核对状态
func (w *Watcher) subscribeLogs() {
	sub, err := w.wsClient.LogsSubscribeMentions(w.collection, rpc.CommitmentConfirmed)
	if err != nil {
		utils.DefaultLogger.Warn("日志订阅失败: %v", err)
		return
	}
	defer sub.Unsubscribe()

	for {
		got, err := sub.Recv()
		if err != nil {
			utils.DefaultLogger.Warn("日志订阅中断: %v", err)
			return
		}
		if got == nil {
			continue
		}
		w.markSignature(got.Value.Signature, got.Value.Err)
	}
}

// pollPending 批量核对 pending 记录的签名状态
func (w *Watcher) pollPending() {
	recs, err := db.ListPendingMintRecords(w.db, 100)
	if err != nil {
		utils.DefaultLogger.Warn("查询 pending 记录失败: %v", err)
		return
	}
	if len(recs) == 0 {
		return
	}

	sigs := make([]solana.Signature, 0, len(recs))
	for _, rec := range recs {
		sig, err := solana.SignatureFromBase58(rec.TXSignature)
		if err != nil {
			utils.DefaultLogger.Warn("记录 %s 的签名无法解析: %v", rec.AssetAddress, err)
			continue
		}
		sigs = append(sigs, sig)
	}
	if len(sigs) == 0 {
		return
	}

	statuses, err := w.client.GetSignatureStatuses(w.ctx, true, sigs...)
	if err != nil || statuses == nil {
		utils.DefaultLogger.Warn("批量查询签名状态失败: %v", err)
		return
	}

	for i, status := range statuses.Value {
		if status == nil {
			continue // 链上还查不到，下轮再看
		}
		if status.Err != nil {
			w.markSignature(sigs[i], status.Err)
			continue
		}
		if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
			status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
			w.markSignature(sigs[i], nil)
		}
	}
}

// markSignature 按链上结果更新审计记录状态
func (w *Watcher) markSignature(sig solana.Signature, chainErr interface{}) {
	status := "confirmed"
	if chainErr != nil {
		status = "failed"
	}
	if err := db.UpdateMintRecordStatus(w.db, sig.String(), status); err != nil {
		utils.DefaultLogger.Warn("更新记录状态失败 (%s -> %s): %v", sig.String(), status, err)
		return
	}
	utils.DefaultLogger.Debug("记录状态更新: %s -> %s", sig.String(), status)
}
