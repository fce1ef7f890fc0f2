// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package config 解析 mail broker 的运行时配置。

# 概述

config 包按 spec 定义的五层优先级合并配置：显式调用参数 >
进程环境变量 > 项目级 env 文件 > 用户级 env 文件 > 内置默认值。
标记为 `layout:"true"` 的 console/layout 键跳过项目级文件层。

# 核心结构

  - Config: 顶层配置聚合，涵盖 App、Store、Storage、HTTP、
    Limits、Disk、Integrity、Tools、Console、Log、Archive、
    Search、Export、Observability
  - Loader: Builder 模式加载器，WithProjectEnvFile /
    WithUserEnvFile / WithOverride / WithValidator 链式配置

# 主要能力

  - 五层优先级解析，反射驱动的字段遍历（`env` tag）
  - KEY=value env 文件解析与写回（幂等往返）
  - DATABASE_URL 的 sqlite 变体解析（相对/绝对路径、内存库）
  - 敏感值脱敏（RedactedSecret，仅保留末 4 位）

# 使用示例

	cfg, err := config.NewLoader().
	    WithProjectEnvFile(".env").
	    WithUserEnvFile(config.DefaultUserEnvFilePath()).
	    Load()
*/
package config
