package app

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const WorldURLPrefix = "https://vrchat.com/home/world/"

const worldIDPrefix = "wrld_"

var worldIDRe = regexp.MustCompile(`wrld_[0-9A-Fa-f-]+`)

// ParseWorldID extrait l'identifiant d'une URL ou d'un id nu, sous forme canonique (minuscules).
func ParseWorldID(raw string) (string, error) {
	m := worldIDRe.FindString(strings.TrimSpace(raw))
	if m == "" {
		return "", &CodedError{Code: CodeInvalidURL, Message: "no world id in " + quoteShort(raw)}
	}
	u, err := uuid.Parse(strings.TrimPrefix(m, worldIDPrefix))
	if err != nil {
		return "", &CodedError{Code: CodeInvalidURL, Message: "malformed world id " + quoteShort(m), Err: err}
	}
	return worldIDPrefix + u.String(), nil
}

func CanonicalWorldURL(id string) string {
	return WorldURLPrefix + id
}

// ReadURLList lit une liste d'URLs (une par ligne, BOM toléré). Seules les lignes
// qui commencent par WorldURLPrefix sont gardées.
func ReadURLList(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, WorldURLPrefix) {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

func quoteShort(s string) string {
	const limit = 120
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return `"` + s + `"`
}
