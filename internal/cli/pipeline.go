package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// pipelineConfigFile — конфигурация pipeline в YAML-файле.
//
// Пример:
//
//	schedule: "0 3 * * *"
//	stages:
//	  - name: Build
//	    steps:
//	      - name: compile
//	        command: make build
//	  - name: Test
//	    steps:
//	      - name: unit
//	        command: make test
type pipelineConfigFile struct {
	Stages []struct {
		Name  string `yaml:"name" json:"name"`
		Steps []struct {
			Name    string `yaml:"name" json:"name"`
			Command string `yaml:"command,omitempty" json:"command,omitempty"`
		} `yaml:"steps" json:"steps"`
	} `yaml:"stages" json:"stages"`
	Schedule string `yaml:"schedule,omitempty" json:"schedule,omitempty"`
}

// NewPipelineCmd создаёт группу команд для управления pipelines.
func NewPipelineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage pipelines",
	}

	cmd.AddCommand(
		newPipelineListCmd(clientFn, outputFn),
		newPipelineCreateCmd(clientFn, outputFn),
		newPipelineShowCmd(clientFn, outputFn),
		newPipelineDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

func newPipelineListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pipelines, err := client.ListPipelines()
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "SCHEDULE", "CREATED"}
			rows := make([][]string, len(pipelines))
			for i, p := range pipelines {
				schedule, _ := p.Config["schedule"].(string)
				rows[i] = []string{p.ID, p.Name, schedule, p.CreatedAt}
			}

			out.Print(headers, rows, pipelines)
			return nil
		},
	}
}

func newPipelineCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a pipeline from a YAML config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			raw, err := os.ReadFile(configPath)
			if err != nil {
				return fmt.Errorf("read config file: %w", err)
			}

			var config pipelineConfigFile
			if err := yaml.Unmarshal(raw, &config); err != nil {
				return fmt.Errorf("parse config file: %w", err)
			}

			pipeline, err := client.CreatePipeline(CreatePipelineRequest{
				Name:   args[0],
				Config: config,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Pipeline created: %s", pipeline.ID))
			out.Print(
				[]string{"ID", "NAME", "CREATED"},
				[][]string{{pipeline.ID, pipeline.Name, pipeline.CreatedAt}},
				pipeline,
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "file", "f", "", "Path to pipeline config YAML (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newPipelineShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show pipeline details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pipeline, err := client.GetPipeline(args[0])
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(pipeline)
				return nil
			}

			out.Table(
				[]string{"ID", "NAME", "CREATED", "UPDATED"},
				[][]string{{pipeline.ID, pipeline.Name, pipeline.CreatedAt, pipeline.UpdatedAt}},
			)
			config, err := json.MarshalIndent(pipeline.Config, "", "  ")
			if err == nil {
				out.Line("%s", config)
			}
			return nil
		},
	}
}

func newPipelineDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a pipeline (run history is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeletePipeline(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Pipeline deleted: %s", args[0]))
			return nil
		},
	}
}
