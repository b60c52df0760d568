package fat32

import (
	"strings"
	"unicode/utf16"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var upperCaser = cases.Upper(language.Und)

// shortNameIllegal is the set of bytes illegal in an 8.3 short name,
// besides the < 0x20 control range (0x05 excluded, it's the 0xE5 escape).
var shortNameIllegal = map[byte]bool{
	0x22: true, 0x2A: true, 0x2E: true, 0x2F: true, 0x3A: true, 0x3C: true,
	0x3E: true, 0x3F: true, 0x5B: true, 0x5C: true, 0x5D: true, 0x7C: true,
}

// longNameIllegal is the same set, minus '.' and the space, which long
// names permit.
var longNameIllegal = map[byte]bool{
	0x22: true, 0x2A: true, 0x2F: true, 0x3A: true, 0x3C: true,
	0x3E: true, 0x3F: true, 0x5B: true, 0x5C: true, 0x5D: true, 0x7C: true,
}

// validateLongName trims leading/trailing spaces and trailing periods,
// then rejects the long-name illegal byte set.
func validateLongName(name string) (string, error) {
	name = strings.Trim(name, " ")
	name = strings.TrimRight(name, ".")
	if name == "" || len(name) > 255 {
		return "", ErrInvalidName
	}
	for i := 0; i < len(name); i++ {
		b := name[i]
		if b < 0x20 && b != 0x05 {
			return "", ErrInvalidName
		}
		if longNameIllegal[b] {
			return "", ErrInvalidName
		}
	}
	return name, nil
}

// splitLongName chunks a long name's UTF-16 encoding into groups of 13
// code units, the last padded with a 0x0000 terminator and 0xFFFF filler.
func splitLongName(name string) [][13]uint16 {
	units := utf16.Encode([]rune(name))
	var groups [][13]uint16
	for i := 0; i < len(units); i += 13 {
		var g [13]uint16
		for j := range g {
			g[j] = 0xFFFF
		}
		end := i + 13
		last := false
		if end >= len(units) {
			end = len(units)
			last = true
		}
		copy(g[:], units[i:end])
		if last && (end-i) < 13 {
			g[end-i] = 0x0000
		}
		groups = append(groups, g)
	}
	if len(groups) == 0 {
		var g [13]uint16
		g[0] = 0x0000
		for j := 1; j < 13; j++ {
			g[j] = 0xFFFF
		}
		groups = append(groups, g)
	}
	return groups
}

// joinLongName reassembles a long name from its groups, in logical order,
// stopping at the 0x0000 terminator if present in the final group.
func joinLongName(groups [][13]uint16) string {
	var units []uint16
	for gi, g := range groups {
		for _, u := range g {
			if u == 0xFFFF {
				continue
			}
			if u == 0x0000 {
				goto done
			}
			units = append(units, u)
		}
		_ = gi
	}
done:
	return string(utf16.Decode(units))
}

// basename8_3 reports whether name already fits the 8.3 short-name mold
// (ASCII, uppercase-foldable, <=8 base chars, <=3 extension chars, at most
// one '.'), and if so returns its raw 11-byte on-disk form.
func basename8_3(name string) (raw [11]byte, ok bool) {
	if name == "." || name == ".." {
		return raw, false
	}
	base, ext, hasDot := strings.Cut(name, ".")
	if strings.Contains(ext, ".") {
		return raw, false
	}
	if !hasDot {
		ext = ""
	}
	if len(base) == 0 || len(base) > 8 || len(ext) > 3 {
		return raw, false
	}
	for i := 0; i < len(raw); i++ {
		raw[i] = ' '
	}
	upperBase := upperCaser.String(base)
	upperExt := upperCaser.String(ext)
	if !isASCIIShortNameSafe(upperBase) || !isASCIIShortNameSafe(upperExt) {
		return raw, false
	}
	if upperBase != base && !isASCIIUppercasable(base) {
		return raw, false
	}
	copy(raw[0:8], upperBase)
	copy(raw[8:11], upperExt)
	return raw, true
}

func isASCIIShortNameSafe(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= 0x80 {
			return false
		}
		if b < 0x20 && b != 0x05 {
			return false
		}
		if shortNameIllegal[b] {
			return false
		}
	}
	return true
}

func isASCIIUppercasable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// synthesizeShortName builds an 11-byte raw 8.3 name from a long name that
// does not already fit 8.3, taking as many leading base characters as fit
// beside the tail in 8 (6 for "~1", at least 1), the tail parameter (e.g.
// "~1", "~2", ... or a checksum-derived fallback tag), and the first 3
// extension characters.
func synthesizeShortName(name, tail string) [11]byte {
	var raw [11]byte
	for i := range raw {
		raw[i] = ' '
	}
	base, ext, _ := strings.Cut(name, ".")
	base = sanitizeForShortName(base)
	ext = sanitizeForShortName(ext)
	upperBase := upperCaser.String(base)
	upperExt := upperCaser.String(ext)

	keep := 8 - len(tail)
	if keep < 1 {
		keep = 1
	}
	if len(upperBase) > keep {
		upperBase = upperBase[:keep]
	}
	copy(raw[0:8], upperBase+tail)
	if len(upperExt) > 3 {
		upperExt = upperExt[:3]
	}
	copy(raw[8:11], upperExt)
	return raw
}

// sanitizeForShortName strips bytes illegal in a short name and spaces,
// leaving only candidate base/extension material.
func sanitizeForShortName(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == ' ' || b == '.' || b >= 0x80 {
			continue
		}
		if shortNameIllegal[b] || b < 0x20 {
			continue
		}
		sb.WriteByte(b)
	}
	return sb.String()
}

// checksumTag derives a 6 hex-ish character fallback numeric tail for
// short-name synthesis once the bounded ~1..~N search space is exhausted,
// grounded in the teacher's gen_numname CRC fallback.
func checksumTag(name string) string {
	var h uint32 = 2166136261
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= 16777619
	}
	const digits = "0123456789ABCDEF"
	var b [6]byte
	for i := range b {
		b[i] = digits[h&0xF]
		h >>= 4
	}
	return "~" + string(b[:])
}

const maxShortNameCollisionAttempts = 99
