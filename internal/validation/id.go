package validation

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kirillm/signal-desk/internal/domain"
)

// idSeq счетчик внутри процесса, разводит ID в пределах одной миллисекунды
var idSeq atomic.Uint32

// 36^3, три символа base36
const seqSpace = 46656

// GenerateOperationID создает идентификатор операции вида
// TRADE_<время base36><счетчик>_<8 hex>[_<ASSET><B|S>].
func GenerateOperationID(asset, orderType string) string {
	ms := strconv.FormatInt(time.Now().UnixMilli(), 36)

	seq := strconv.FormatUint(uint64(idSeq.Add(1)%seqSpace), 36)
	seq = strings.Repeat("0", 3-len(seq)) + seq

	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

	var b strings.Builder
	b.WriteString("TRADE_")
	b.WriteString(ms)
	b.WriteString(seq)
	b.WriteString("_")
	b.WriteString(random)

	if asset = strings.TrimSpace(asset); asset != "" {
		b.WriteString("_")
		b.WriteString(asset)
		if side := strings.ToUpper(strings.TrimSpace(orderType)); side == domain.SideBuy || side == domain.SideSell {
			b.WriteByte(side[0])
		}
	}

	return strings.ToUpper(b.String())
}
