// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package enqueue

import (
	"github.com/cardinalhq/thumbsync/internal/awsclient"
	"github.com/cardinalhq/thumbsync/internal/azureclient"
)

const (
	ProviderAzure = "azure"
	ProviderSQS   = "sqs"
)

// Config controls where messages are enqueued.
type Config struct {
	Provider string             `mapstructure:"provider"`
	Name     string             `mapstructure:"name"`
	Encoding string             `mapstructure:"encoding"`
	Azure    azureclient.Config `mapstructure:"azure"`
	SQS      awsclient.Config   `mapstructure:"sqs"`
}

func DefaultConfig() Config {
	return Config{
		Provider: ProviderAzure,
		Name:     "screenshots-jobs",
		Encoding: string(EncodingBase64),
	}
}
