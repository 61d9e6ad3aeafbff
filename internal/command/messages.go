package command

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/gramlink/internal/model"
)

// resolvePeer はピア指定（数値IDまたはユーザー名）を正規化する。
// 数値IDはそのまま、ユーザー名は先頭@付きの形へ正規化する。
// 不正な指定には ("", false) を返す。
func resolvePeer(raw string) (string, bool) {
	if id, ok := parseNumericID(raw); ok {
		return fmt.Sprintf("%d", id), true
	}
	if name, ok := normalizeUsername(raw); ok {
		return "@" + name, true
	}
	return "", false
}

// SendMessage は指定ピアへテキストメッセージを送る。
// 本文はマークアップ除去後に長さを検証する。
func (s *Service) SendMessage(ctx context.Context, sess *model.Session, peer, body string) (result *model.CommandResult) {
	const op = "messages.send"
	defer s.recoverCommand(sess, op, &result)

	target, ok := resolvePeer(peer)
	if !ok {
		return validationFailure("Invalid recipient.")
	}

	body = s.stripper.Strip(body)
	if body == "" {
		return validationFailure("Message body is required.")
	}
	if len(body) > maxBodyLength {
		return validationFailure(fmt.Sprintf("Message body must be at most %d characters.", maxBodyLength))
	}

	client, fail := s.initClient(sess, op)
	if fail != nil {
		return fail
	}

	start := time.Now()
	if _, err := client.SendMessage(ctx, target, body); err != nil {
		return s.failure(sess, op, err)
	}
	return s.success(op, "Message sent.", time.Since(start))
}

// ForwardMessage はメッセージを別ピアへ転送する。
func (s *Service) ForwardMessage(ctx context.Context, sess *model.Session, fromPeerID, toPeerID, messageID string) (result *model.CommandResult) {
	const op = "messages.forward"
	defer s.recoverCommand(sess, op, &result)

	fromID, ok := parseNumericID(fromPeerID)
	if !ok {
		return validationFailure("Invalid source channel ID.")
	}
	toID, ok := parseNumericID(toPeerID)
	if !ok {
		return validationFailure("Invalid destination channel ID.")
	}
	msgID, ok := parseNumericID(messageID)
	if !ok {
		return validationFailure("Invalid message ID.")
	}

	client, fail := s.initClient(sess, op)
	if fail != nil {
		return fail
	}

	start := time.Now()
	if _, err := client.ForwardMessage(ctx, fromID, toID, msgID); err != nil {
		return s.failure(sess, op, err)
	}
	return s.success(op, "Message forwarded.", time.Since(start))
}

// EditMessage は送信済みメッセージの本文を書き換える。
func (s *Service) EditMessage(ctx context.Context, sess *model.Session, peerID, messageID, body string) (result *model.CommandResult) {
	const op = "messages.edit"
	defer s.recoverCommand(sess, op, &result)

	pID, ok := parseNumericID(peerID)
	if !ok {
		return validationFailure("Invalid channel ID.")
	}
	msgID, ok := parseNumericID(messageID)
	if !ok {
		return validationFailure("Invalid message ID.")
	}

	body = s.stripper.Strip(body)
	if body == "" {
		return validationFailure("Message body is required.")
	}
	if len(body) > maxBodyLength {
		return validationFailure(fmt.Sprintf("Message body must be at most %d characters.", maxBodyLength))
	}

	client, fail := s.initClient(sess, op)
	if fail != nil {
		return fail
	}

	start := time.Now()
	if err := client.EditMessage(ctx, pID, msgID, body); err != nil {
		return s.failure(sess, op, err)
	}
	return s.success(op, "Message edited.", time.Since(start))
}

// DeleteMessage は送信済みメッセージを削除する。
func (s *Service) DeleteMessage(ctx context.Context, sess *model.Session, peerID, messageID string) (result *model.CommandResult) {
	const op = "messages.delete"
	defer s.recoverCommand(sess, op, &result)

	pID, ok := parseNumericID(peerID)
	if !ok {
		return validationFailure("Invalid channel ID.")
	}
	msgID, ok := parseNumericID(messageID)
	if !ok {
		return validationFailure("Invalid message ID.")
	}

	client, fail := s.initClient(sess, op)
	if fail != nil {
		return fail
	}

	start := time.Now()
	if err := client.DeleteMessage(ctx, pID, msgID); err != nil {
		return s.failure(sess, op, err)
	}
	return s.success(op, "Message deleted.", time.Since(start))
}
