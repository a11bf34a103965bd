package constants

// Blob keys used with the persistence backend.
const (
	BlobCronTable = "cron_state"
	BlobGPIOTable = "gpio_state"
	BlobAuthKey   = "auth_key"
	BlobSettings  = "settings"
)
