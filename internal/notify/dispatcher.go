// Package notify はリクエストのライフサイクルイベントに対する
// ベストエフォートのメール通知を提供する。
//
// 通知の失敗はログとメトリクスに記録されるだけで、呼び出し元の成功経路には
// 一切影響しない。リクエストストアが常に唯一の正であり、通知はat-most-once。
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/demulla/servicedesk/internal/model"
	"github.com/mailgun/mailgun-go/v4"
)

// Event は通知対象のライフサイクルイベントを表す。
type Event string

const (
	// EventRequestCreated はサービスリクエストの新規作成イベント。
	EventRequestCreated Event = "request_created"
	// EventStatusChanged はステータス遷移イベント。
	EventStatusChanged Event = "status_changed"
)

// Sender はメール送信の最小インターフェース。
// テストではモック、本番ではMailgunクライアントを注入する。
type Sender interface {
	Send(ctx context.Context, subject, body, to string) error
}

// MetricsRecorder は通知結果の計測インターフェース。
type MetricsRecorder interface {
	RecordNotificationFailure(event string)
	RecordNotificationLatency(d time.Duration)
}

// Dispatcher はライフサイクルイベントのメール通知を行う。
// Dispatchは呼び出し元のHTTPレスポンスをブロックしないよう、
// 独立したタイムアウト付きコンテキストのゴルーチンで送信する。
type Dispatcher struct {
	sender  Sender
	to      string
	timeout time.Duration
	metrics MetricsRecorder

	wg sync.WaitGroup
}

// NewDispatcher はDispatcherを生成する。
// senderがnilの場合、Dispatchは何もしない（通知無効の運用）。
func NewDispatcher(sender Sender, to string, timeout time.Duration, metrics MetricsRecorder) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		to:      to,
		timeout: timeout,
		metrics: metrics,
	}
}

// Dispatch はイベント通知を非同期で送信する。エラーを返すことはない。
// 遅い外部メールAPIがリクエスト処理を停滞させないよう、送信には専用の
// タイムアウトを適用する。
func (d *Dispatcher) Dispatch(event Event, req *model.ServiceRequest) {
	if d.sender == nil {
		return
	}

	subject, body := buildMessage(event, req)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		start := time.Now()
		err := d.sender.Send(ctx, subject, body, d.to)
		elapsed := time.Since(start)

		if d.metrics != nil {
			d.metrics.RecordNotificationLatency(elapsed)
		}

		if err != nil {
			if d.metrics != nil {
				d.metrics.RecordNotificationFailure(string(event))
			}
			slog.Error("notification dispatch failed",
				slog.String("event", string(event)),
				slog.String("request_id", req.ID),
				slog.String("error", err.Error()),
			)
			return
		}

		slog.Info("notification dispatched",
			slog.String("event", string(event)),
			slog.String("request_id", req.ID),
		)
	}()
}

// Wait は進行中の通知送信の完了を待つ。グレースフルシャットダウンとテストで使用する。
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// buildMessage はイベントからメールの件名と本文を組み立てる。
func buildMessage(event Event, req *model.ServiceRequest) (subject, body string) {
	switch event {
	case EventRequestCreated:
		subject = fmt.Sprintf("[Service Desk] New request: %s (%s)", req.Category, req.Priority)
		body = fmt.Sprintf(
			"A new service request has been submitted.\n\n"+
				"Request ID: %s\nRequester: %s <%s>\nDepartment: %s\nCategory: %s\nPriority: %s\n\n%s\n",
			req.ID, req.RequesterName, req.Email, req.Department, req.Category, req.Priority, req.Description,
		)
	case EventStatusChanged:
		subject = fmt.Sprintf("[Service Desk] Request %s is now %s", req.ID, req.Status)
		body = fmt.Sprintf(
			"The status of a service request has changed.\n\n"+
				"Request ID: %s\nRequester: %s <%s>\nCategory: %s\nNew status: %s\nAssigned to: %s\n",
			req.ID, req.RequesterName, req.Email, req.Category, req.Status, req.AssignedTo,
		)
	default:
		subject = fmt.Sprintf("[Service Desk] Request %s updated", req.ID)
		body = fmt.Sprintf("Request ID: %s\nStatus: %s\n", req.ID, req.Status)
	}
	return subject, body
}

// MailgunSender はMailgun APIを使用したSender実装。
type MailgunSender struct {
	mg   mailgun.Mailgun
	from string
}

// NewMailgunSender はMailgunSenderを生成する。
func NewMailgunSender(domain, apiKey, from string) *MailgunSender {
	return &MailgunSender{
		mg:   mailgun.NewMailgun(domain, apiKey),
		from: from,
	}
}

// Send はMailgun経由でメールを1通送信する。
func (s *MailgunSender) Send(ctx context.Context, subject, body, to string) error {
	msg := s.mg.NewMessage(s.from, subject, body, to)
	if _, _, err := s.mg.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send via mailgun: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Sender = (*MailgunSender)(nil)
