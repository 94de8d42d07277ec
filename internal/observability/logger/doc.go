// Package logger provides a singleton Zap logger with context-based scoping.
//
// # Design Decisions
//
//   - Singleton: una sola instancia global inicializada con Init().
//   - Context Scoping: cada request lleva su logger "scoped" (request_id, provider)
//     sin crear un nuevo core.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//   - Secretos: consumer secret, token secrets y el blob de estado nunca se loguean;
//     no hay field helpers para ellos a propósito.
//
// # Usage
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
// En controllers/services:
//
//	log := logger.From(ctx).With(logger.Component("twitter.handshake"))
//	log.Info("authenticated", logger.ScreenName(id.ScreenName))
package logger
