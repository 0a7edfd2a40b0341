package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/hardwater/internal/store"
)

// addStoreFlags declares the reading store flags of cmd and binds them under
// prefix.
func addStoreFlags(cmd *cobra.Command, prefix string) {
	flags := cmd.Flags()
	flags.String("store-driver", store.DriverMemory, "reading store (memory, postgres, redis)")
	flags.String("db-host", "localhost", "PostgreSQL host")
	flags.Int("db-port", 5432, "PostgreSQL port")
	flags.String("db-user", "postgres", "PostgreSQL user")
	flags.String("db-password", "", "PostgreSQL password")
	flags.String("db-name", "hardwater", "PostgreSQL database name")
	flags.String("db-sslmode", "disable", "PostgreSQL SSL mode")
	flags.String("redis-addr", "localhost:6379", "Redis address")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database")

	_ = viper.BindPFlag(prefix+".store.driver", flags.Lookup("store-driver"))
	_ = viper.BindPFlag(prefix+".db.host", flags.Lookup("db-host"))
	_ = viper.BindPFlag(prefix+".db.port", flags.Lookup("db-port"))
	_ = viper.BindPFlag(prefix+".db.user", flags.Lookup("db-user"))
	_ = viper.BindPFlag(prefix+".db.password", flags.Lookup("db-password"))
	_ = viper.BindPFlag(prefix+".db.name", flags.Lookup("db-name"))
	_ = viper.BindPFlag(prefix+".db.sslmode", flags.Lookup("db-sslmode"))
	_ = viper.BindPFlag(prefix+".redis.addr", flags.Lookup("redis-addr"))
	_ = viper.BindPFlag(prefix+".redis.password", flags.Lookup("redis-password"))
	_ = viper.BindPFlag(prefix+".redis.db", flags.Lookup("redis-db"))
}

// storeConfigFromViper reads the store settings under prefix.
func storeConfigFromViper(prefix string) *store.Config {
	return &store.Config{
		Driver: viper.GetString(prefix + ".store.driver"),
		DB: &store.DBConfig{
			Host:     viper.GetString(prefix + ".db.host"),
			Port:     viper.GetInt(prefix + ".db.port"),
			User:     viper.GetString(prefix + ".db.user"),
			Password: viper.GetString(prefix + ".db.password"),
			DBName:   viper.GetString(prefix + ".db.name"),
			SSLMode:  viper.GetString(prefix + ".db.sslmode"),
		},
		Redis: &store.RedisConfig{
			Addr:     viper.GetString(prefix + ".redis.addr"),
			Password: viper.GetString(prefix + ".redis.password"),
			DB:       viper.GetInt(prefix + ".redis.db"),
		},
	}
}
