package recommendations

import (
	"net/url"
	"strings"

	"serotonyl.ru/points-bot/internal/common"
)

// NormalizeLink приводит ссылку к виду https://host/path.
// Ссылку без схемы (br.shp.ee/abc) считаем https. Фрагмент отбрасывается,
// схема и хост приводятся к нижнему регистру, чтобы одна ссылка не считалась двумя.
func NormalizeLink(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t\n") {
		return "", common.ErrLinkInvalid
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", common.ErrLinkInvalid
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", common.ErrLinkInvalid
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || !strings.Contains(host, ".") || strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") {
		return "", common.ErrLinkInvalid
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.User = nil
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String(), nil
}
