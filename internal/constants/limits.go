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

package constants

const (
	HTTPBodyLimitBytes        = int64(1024 * 1024) // 1MB, the largest batch Event Grid delivers
	AzureQueueMessageMaxBytes = 64 * 1024          // 64KiB per stored Azure queue message
	SQSMessageMaxBytes        = 256 * 1024         // 256KiB per SQS message
)
