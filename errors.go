package sandwich

import "errors"

var (
	ErrReadConfigurationFailure = errors.New("failed to read configuration")
	ErrLoadConfigurationFailure = errors.New("failed to load configuration")

	ErrConfigurationValidateToken    = errors.New("configuration missing bot token")
	ErrConfigurationValidateShards   = errors.New("configuration has invalid shard ids")
	ErrConfigurationValidateProducer = errors.New("configuration has an unknown producer type")

	ErrSandwichAlreadyOpen = errors.New("sandwich is already open")
)
