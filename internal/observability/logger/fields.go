package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field { return zap.String("request_id", v) }

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field { return zap.String("method", v) }

// Path crea un campo para el path del request.
func Path(v string) zap.Field { return zap.String("path", v) }

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field { return zap.Int("status", v) }

// Duration crea un campo para una duración.
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - LOGIN
// =================================================================================

// Provider crea un campo para el identity provider.
func Provider(v string) zap.Field { return zap.String("provider", v) }

// Endpoint crea un campo para el endpoint backchannel (request_token, access_token).
func Endpoint(v string) zap.Field { return zap.String("endpoint", v) }

// Phase crea un campo para la fase del handshake.
func Phase(v string) zap.Field { return zap.String("phase", v) }

// Kind crea un campo para el tipo de falla del handshake.
func Kind(v string) zap.Field { return zap.String("kind", v) }

// ScreenName crea un campo para el screen name del usuario externo.
func ScreenName(v string) zap.Field { return zap.String("screen_name", v) }

// ExternalUserID crea un campo para el ID del usuario en el provider.
func ExternalUserID(v string) zap.Field { return zap.String("external_user_id", v) }

// SecurityEvent marca eventos que merecen revisión (estado alterado, endpoint no confiable).
func SecurityEvent() zap.Field { return zap.Bool("security_event", true) }

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field { return zap.String("component", v) }

// Op crea un campo para la operación actual.
func Op(v string) zap.Field { return zap.String("op", v) }

// Layer crea un campo para la capa (controller, service, client).
func Layer(v string) zap.Field { return zap.String("layer", v) }

// Err crea un campo para un error.
func Err(err error) zap.Field { return zap.Error(err) }

// String crea un campo string genérico.
func String(key, v string) zap.Field { return zap.String(key, v) }

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }

// Bytes crea un campo para bytes escritos.
func Bytes(v int) zap.Field { return zap.Int("bytes", v) }

// Any crea un campo genérico (usar con moderación).
func Any(key string, v any) zap.Field { return zap.Any(key, v) }
