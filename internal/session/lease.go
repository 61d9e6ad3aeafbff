package session

import "sync"

// userLease はユーザー単位の排他リース。
// 同一ユーザーのログイン・ログアウト操作を直列化し、セッション行と
// セッションディレクトリの二重作成・二重破棄を防ぐ。プロセス内のみで有効。
type userLease struct {
	mu    sync.Mutex
	locks map[string]*leaseEntry
}

type leaseEntry struct {
	mu   sync.Mutex
	refs int
}

func newUserLease() *userLease {
	return &userLease{locks: make(map[string]*leaseEntry)}
}

// Acquire は指定ユーザーのリースを取得し、解放関数を返す。
// 解放関数は必ず1回だけ呼ぶこと（deferを推奨）。
func (l *userLease) Acquire(userID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[userID]
	if !ok {
		entry = &leaseEntry{}
		l.locks[userID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
