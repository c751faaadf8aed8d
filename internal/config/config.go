package config

import (
	"os"
	"strconv"
)

type Config struct {
	DBPath            string
	LogLevel          string
	LogFile           string
	MaterialThreshold float64
	SupplierThreshold float64
}

func Load() Config {
	return Config{
		DBPath:            getenv("DB_PATH", "catalog.db"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogFile:           getenv("LOG_FILE", "logs/catalog-recon.log"),
		MaterialThreshold: getfloat("MATERIAL_THRESHOLD", 0.90),
		SupplierThreshold: getfloat("SUPPLIER_THRESHOLD", 0.80),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 || f > 1 {
		return def
	}
	return f
}
