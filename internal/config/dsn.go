package config

import (
	"net"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DSNValue returns the configured DSN or URL verbatim, otherwise a MySQL DSN
// assembled from the normalized fields.
func (c DatabaseRuntimeConfig) DSNValue() string {
	if v := firstNonEmpty(c.DSN, c.URL); v != "" {
		return v
	}

	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(firstNonEmpty(c.Host, defaultDBHost), strconv.Itoa(orDefault(c.Port, defaultDBPort)))
	mc.User = firstNonEmpty(c.User, c.Username, defaultDBUser)
	mc.Passwd = firstNonEmpty(c.Password, defaultDBPassword)
	mc.DBName = firstNonEmpty(c.Name, c.DBName, defaultDBName)
	mc.ParseTime = c.ParseTime
	mc.Loc = loadLocation(firstNonEmpty(c.Loc, defaultDBLoc))
	mc.Params = map[string]string{"charset": firstNonEmpty(c.Charset, defaultDBCharset)}

	for key, value := range c.Params {
		k, v := strings.TrimSpace(key), strings.TrimSpace(value)
		if k == "" || v == "" {
			continue
		}
		switch k {
		case "parseTime":
			mc.ParseTime, _ = strconv.ParseBool(v)
		case "loc":
			mc.Loc = loadLocation(v)
		default:
			mc.Params[k] = v
		}
	}
	return mc.FormatDSN()
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// URLValue returns the configured redis URL, otherwise one assembled from the
// normalized fields.
func (c RedisRuntimeConfig) URLValue() string {
	if u := normalizeRedisRawURL(c.URL); u != "" {
		return u
	}

	scheme := "redis"
	if c.Scheme == "rediss" || (c.Scheme == "" && c.TLS) {
		scheme = "rediss"
	}
	db := c.DB
	if db < 0 {
		db = defaultRedisDB
	}
	u := neturl.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(firstNonEmpty(c.Host, defaultRedisHost), strconv.Itoa(orDefault(c.Port, defaultRedisPort))),
		Path:   "/" + strconv.Itoa(db),
	}

	switch user, pass := strings.TrimSpace(c.Username), strings.TrimSpace(c.Password); {
	case pass != "":
		u.User = neturl.UserPassword(user, pass)
	case user != "":
		u.User = neturl.User(user)
	}

	query := neturl.Values{}
	for key, value := range c.Params {
		if k, v := strings.TrimSpace(key), strings.TrimSpace(value); k != "" && v != "" {
			query.Set(k, v)
		}
	}
	u.RawQuery = query.Encode()
	return u.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
