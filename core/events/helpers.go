package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"merkledrop/crypto"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAmounts(values []*big.Int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatAmount(v)
	}
	return strings.Join(parts, ",")
}

func formatAddresses(addrs []common.Address) string {
	parts := make([]string, len(addrs))
	for i, addr := range addrs {
		parts[i] = crypto.FormatAddress(addr)
	}
	return strings.Join(parts, ",")
}

func intToString(v int64) string {
	return strconv.FormatInt(v, 10)
}
