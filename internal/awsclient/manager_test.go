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

package awsclient

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func testManager() *Manager {
	base := aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("BASE", "base-secret", ""),
	}
	return &Manager{
		baseCfg:     base,
		stsClient:   sts.NewFromConfig(base),
		sessionName: "thumbsync",
		providers:   make(map[providerKey]aws.CredentialsProvider),
		tracer:      otel.Tracer("test"),
	}
}

func TestConfigForDefaults(t *testing.T) {
	m := testManager()

	cfg := m.configFor(Config{})
	assert.Equal(t, "us-east-1", cfg.Region)

	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BASE", creds.AccessKeyID)
}

func TestConfigForStaticKeys(t *testing.T) {
	m := testManager()

	cfg := m.configFor(Config{Region: "eu-west-1", AccessKeyID: "AKID", SecretAccessKey: "secret", RoleARN: "arn:aws:iam::123456789012:role/ignored"})
	assert.Equal(t, "eu-west-1", cfg.Region)

	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKID", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)

	assert.Equal(t, "us-east-1", m.baseCfg.Region, "base config is not modified")
}

func TestConfigForCachesProviders(t *testing.T) {
	m := testManager()

	m.configFor(Config{RoleARN: "arn:aws:iam::123456789012:role/thumbs"})
	m.configFor(Config{RoleARN: "arn:aws:iam::123456789012:role/thumbs", Region: "us-west-2"})
	m.configFor(Config{AccessKeyID: "AKID"})
	assert.Len(t, m.providers, 2)
}

func TestGetClients(t *testing.T) {
	m := testManager()

	s3c, err := m.GetS3(context.Background(), Config{Endpoint: "http://127.0.0.1:9000", UsePathStyle: true})
	require.NoError(t, err)
	assert.NotNil(t, s3c.Client)
	assert.True(t, s3c.Client.Options().UsePathStyle)
	assert.Equal(t, "http://127.0.0.1:9000", aws.ToString(s3c.Client.Options().BaseEndpoint))

	sqsc, err := m.GetSQS(context.Background(), Config{Region: "us-west-2"})
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", sqsc.Client.Options().Region)
}
