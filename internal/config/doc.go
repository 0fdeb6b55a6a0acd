// Package config 负责加载 smartclaimd 的 YAML 配置文件（JSON 亦可），
// 并为未填写的字段补齐默认值。
package config
