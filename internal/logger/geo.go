package logger

import (
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
)

// GeoIP：基于 MaxMind 国家库的访客国家解析
type GeoIP struct {
	r *geoip2.Reader
}

// OpenGeoIPFromEnv：按 GEOIP_DB_PATH 打开国家库；未配置返回 nil, nil
func OpenGeoIPFromEnv() (*GeoIP, error) {
	p := os.Getenv("GEOIP_DB_PATH")
	if p == "" {
		return nil, nil
	}
	r, err := geoip2.Open(p)
	if err != nil {
		return nil, err
	}
	L().Info("geoip_open_ok", "path", p)
	return &GeoIP{r: r}, nil
}

// Country：非法 IP 或未命中返回空串
func (g *GeoIP) Country(ip string) string {
	if g == nil || g.r == nil {
		return ""
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	rec, err := g.r.Country(parsed)
	if err != nil {
		return ""
	}
	return rec.Country.IsoCode
}

func (g *GeoIP) Close() error {
	if g == nil || g.r == nil {
		return nil
	}
	return g.r.Close()
}
