package steamid

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

var ErrInvalid = errors.New("steam id must look like STEAM_0:1:12345678")

var steam2Re = regexp.MustCompile(`^STEAM_([0-5]):([01]):(\d+)$`)

// individual account base, universe public
const base uint64 = 76561197960265728

// Parse converts a legacy STEAM_X:Y:Z id into its 64-bit form.
func Parse(s string) (uint64, error) {
	m := steam2Re.FindStringSubmatch(s)
	if m == nil {
		return 0, ErrInvalid
	}
	y, _ := strconv.ParseUint(m[2], 10, 64)
	z, err := strconv.ParseUint(m[3], 10, 32)
	if err != nil {
		return 0, ErrInvalid
	}
	return base + z*2 + y, nil
}

// Steam2 renders a 64-bit id the way game servers expect it in rosters.
func Steam2(id uint64) string {
	account := id - base
	return fmt.Sprintf("STEAM_1:%d:%d", account&1, account>>1)
}

func Valid(s string) bool { return steam2Re.MatchString(s) }
