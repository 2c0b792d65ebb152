package services

import "sync"

// InFlightGuard 以鍵為單位管理互斥：
//   - TryAcquire/Release：非阻塞，用於「同一錄音最多一個進行中的轉錄/萃取」，
//     搶不到的一方立即以 DuplicateInFlight 失敗，不與外部服務競速。
//   - Lock/Unlock：阻塞，用於 confirm/discard 的終態互斥，
//     落敗的併發呼叫等鎖釋放後讀到終態，回傳快取結果而不重新寫入。
type InFlightGuard struct {
	mu     sync.Mutex
	active map[string]bool
	locks  map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewInFlightGuard 建立一個 InFlightGuard 實例
func NewInFlightGuard() *InFlightGuard {
	return &InFlightGuard{
		active: make(map[string]bool),
		locks:  make(map[string]*keyedLock),
	}
}

// TryAcquire 嘗試取得指定鍵的進行中標記，已被持有時回傳 false
func (g *InFlightGuard) TryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[key] {
		return false
	}
	g.active[key] = true
	return true
}

// Release 釋放指定鍵的進行中標記。逾時或失敗路徑也必須呼叫（通常以 defer）。
func (g *InFlightGuard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
}

// Lock 阻塞直到取得指定鍵的互斥鎖
func (g *InFlightGuard) Lock(key string) {
	g.mu.Lock()
	l, ok := g.locks[key]
	if !ok {
		l = &keyedLock{}
		g.locks[key] = l
	}
	l.refs++
	g.mu.Unlock()
	l.mu.Lock()
}

// Unlock 釋放指定鍵的互斥鎖
func (g *InFlightGuard) Unlock(key string) {
	g.mu.Lock()
	l, ok := g.locks[key]
	if ok {
		l.refs--
		if l.refs == 0 {
			delete(g.locks, key)
		}
	}
	g.mu.Unlock()
	if ok {
		l.mu.Unlock()
	}
}
