package auth

import (
	"crypto/subtle"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// hashedEntry はハッシュ化済みのユーザーレコード。
type hashedEntry struct {
	hash string
	role string
}

// hashedStore はハッシュ化したパスワードで照合する通常モードの実装。
type hashedStore struct {
	hasher PasswordHasher
	users  map[string]hashedEntry
	// dummyHash は存在しないユーザーでも照合コストを揃えるためのハッシュ。
	dummyHash string
}

func newHashedStore(users []User, hasher PasswordHasher) (*hashedStore, error) {
	s := &hashedStore{
		hasher: hasher,
		users:  make(map[string]hashedEntry, len(users)),
	}
	for _, u := range users {
		hash, err := hasher.Hash(u.Password)
		if err != nil {
			return nil, fmt.Errorf("ユーザー %q のパスワードハッシュ生成に失敗: %w", u.Username, err)
		}
		s.users[u.Username] = hashedEntry{hash: hash, role: u.Role}
	}

	dummy, err := hasher.Hash("campus-gateway-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("ダミーハッシュの生成に失敗: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

func (s *hashedStore) mode() Mode { return ModeHashed }

func (s *hashedStore) authenticate(username, password string) (Principal, bool) {
	entry, ok := s.users[username]
	if !ok {
		_ = s.hasher.Compare(s.dummyHash, password)
		return Principal{}, false
	}
	if err := s.hasher.Compare(entry.hash, password); err != nil {
		return Principal{}, false
	}
	return Principal{Username: username, Role: entry.role}, true
}

// plaintextStore はハッシュ化が利用できない場合の縮退モードの実装。
// 照合のたびに警告ログとメトリクスを出力する。
type plaintextStore struct {
	users    map[string]User
	logger   *zap.Logger
	degraded prometheus.Counter
}

func newPlaintextStore(users []User, logger *zap.Logger, degraded prometheus.Counter) *plaintextStore {
	s := &plaintextStore{
		users:    make(map[string]User, len(users)),
		logger:   logger,
		degraded: degraded,
	}
	for _, u := range users {
		s.users[u.Username] = u
	}
	return s
}

func (s *plaintextStore) mode() Mode { return ModeDegraded }

func (s *plaintextStore) authenticate(username, password string) (Principal, bool) {
	s.degraded.Inc()
	s.logger.Warn("縮退モード（平文照合）で資格情報を検証しています。本番環境では使用しないこと",
		zap.String("mode", string(ModeDegraded)),
		zap.String("username", username),
	)

	u, ok := s.users[username]
	if !ok {
		return Principal{}, false
	}
	if subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) != 1 {
		return Principal{}, false
	}
	return Principal{Username: u.Username, Role: u.Role}, true
}
