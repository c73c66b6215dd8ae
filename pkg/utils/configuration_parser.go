package utils

import (
	"os"
	"path/filepath"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"gopkg.in/yaml.v2"
)

type config interface {
	entities.GatewayConfig | entities.NodeConfig
}

func readTextFile(filepathName string) ([]byte, error) {
	fileContent, err := os.ReadFile(filepath.Clean(filepathName))
	return fileContent, err
}

// ConfigurationParser reads a YAML file over the defaults held by
// configEntity.
func ConfigurationParser[T config](filepathName string, configEntity T) (T, error) {
	fileContent, err := readTextFile(filepath.Clean(filepathName))
	if err != nil {
		return configEntity, err
	}

	err = yaml.Unmarshal(fileContent, &configEntity)
	return configEntity, err
}
