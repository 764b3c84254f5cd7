package telegram

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillm/signal-desk/internal/domain"
)

// ErrRateLimited пользователь превысил частоту запросов
var ErrRateLimited = errors.New("rate limit exceeded")

// AuthManager управляет правами доступа и rate limiting
type AuthManager struct {
	adminIDs        map[int64]bool
	whitelist       map[int64]bool
	limiters        map[int64]*userLimiter
	perSecond       int
	enableWhitelist bool
	now             func() time.Time
	mu              sync.Mutex
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewAuthManager создает новый менеджер авторизации.
// adminIDsStr и whitelistStr - списки ID через запятую.
func NewAuthManager(adminIDsStr, whitelistStr string, perSecond int) *AuthManager {
	if perSecond <= 0 {
		perSecond = 2
	}

	am := &AuthManager{
		adminIDs:  parseIDs(adminIDsStr),
		whitelist: parseIDs(whitelistStr),
		limiters:  make(map[int64]*userLimiter),
		perSecond: perSecond,
		now:       time.Now,
	}
	am.enableWhitelist = strings.TrimSpace(whitelistStr) != ""

	return am
}

func parseIDs(s string) map[int64]bool {
	ids := make(map[int64]bool)
	for _, idStr := range strings.Split(s, ",") {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}
		if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			ids[id] = true
		}
	}
	return ids
}

// IsAdmin проверяет, является ли пользователь администратором.
// Пустой список администраторов разрешает всем.
func (am *AuthManager) IsAdmin(userID int64) bool {
	am.mu.Lock()
	defer am.mu.Unlock()

	if len(am.adminIDs) == 0 {
		return true
	}
	return am.adminIDs[userID]
}

// IsAllowed проверяет, разрешен ли доступ пользователю
func (am *AuthManager) IsAllowed(userID int64) bool {
	am.mu.Lock()
	defer am.mu.Unlock()

	if !am.enableWhitelist {
		return true
	}
	// Админы всегда разрешены
	if am.adminIDs[userID] {
		return true
	}
	return am.whitelist[userID]
}

// CheckRateLimit проверяет rate limit для пользователя
func (am *AuthManager) CheckRateLimit(userID int64) error {
	am.mu.Lock()
	defer am.mu.Unlock()

	now := am.now()
	ul, exists := am.limiters[userID]
	if !exists {
		ul = &userLimiter{limiter: rate.NewLimiter(rate.Limit(am.perSecond), am.perSecond)}
		am.limiters[userID] = ul
	}
	ul.lastSeen = now

	r := ul.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return fmt.Errorf("%w, please wait %v", ErrRateLimited, delay.Round(time.Millisecond))
	}
	return nil
}

// RequireAdmin возвращает ошибку, если пользователь не администратор
func (am *AuthManager) RequireAdmin(userID int64) error {
	if !am.IsAdmin(userID) {
		return fmt.Errorf("%w: admin permission required", domain.ErrUnauthorized)
	}
	return nil
}

// GetAdminIDs возвращает список ID администраторов
func (am *AuthManager) GetAdminIDs() []int64 {
	am.mu.Lock()
	defer am.mu.Unlock()

	ids := make([]int64, 0, len(am.adminIDs))
	for id := range am.adminIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CleanupRateLimiters удаляет лимитеры неактивных пользователей, возвращает количество удаленных
func (am *AuthManager) CleanupRateLimiters(maxIdle time.Duration) int {
	am.mu.Lock()
	defer am.mu.Unlock()

	now := am.now()
	removed := 0
	for userID, ul := range am.limiters {
		if now.Sub(ul.lastSeen) > maxIdle {
			delete(am.limiters, userID)
			removed++
		}
	}
	return removed
}
