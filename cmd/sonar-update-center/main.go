package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spotbugs/sonar-update-center/internal/action"
	"github.com/spotbugs/sonar-update-center/internal/config"
	"github.com/spotbugs/sonar-update-center/internal/discourse"
	"github.com/spotbugs/sonar-update-center/internal/repository"
	"github.com/spotbugs/sonar-update-center/internal/sonarqube"
	"github.com/spotbugs/sonar-update-center/internal/update"
)

var version = "dev"

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	cmd := &cobra.Command{
		Use:     "sonar-update-center",
		Short:   "Register a new plugin release in the SonarQube update center",
		Version: version,
		Args:    cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if must(cmd.Flags().GetBool("debug")) {
				log.SetLevel(logrus.DebugLevel)
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			if err := run(log, cmd, args); err != nil {
				log.Errorf("ERROR: %v", err)
				os.Exit(1)
			}
		},
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.Flags().String("prop-file", "", "file name of the properties file in the update center repository")
	cmd.Flags().String("description", "", "description of the release")
	cmd.Flags().String("minimal-supported-sq-version", "", "minimal supported SonarQube version")
	cmd.Flags().String("latest-supported-sq-version", "LATEST", "latest supported SonarQube version")
	cmd.Flags().String("changelog-url", "", "URL of the changelog")
	cmd.Flags().String("download-url", "", "URL to download the plugin")
	cmd.Flags().String("public-version", "", "the released version")
	cmd.Flags().String("sonar-cloud-url", "", "URL of the SonarCloud project, used in the announcement")
	cmd.Flags().Bool("skip-creating-pull-request", false, "do not create a pull request")
	cmd.Flags().Bool("skip-announcing", false, "do not announce the release at the community forum")
	cmd.Flags().SortFlags = false

	cmd.AddCommand(&cobra.Command{
		Use:   "latest-sonarqube-version",
		Short: "Print the latest SonarQube minor version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := runLatestSonarQubeVersion(log, cmd); err != nil {
				log.Errorf("ERROR: %v", err)
				os.Exit(1)
			}
		},
	})

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func releaseInputFromFlags(cmd *cobra.Command) *config.ReleaseInput {
	flags := cmd.Flags()
	return &config.ReleaseInput{
		PropFile:                  must(flags.GetString("prop-file")),
		Description:               must(flags.GetString("description")),
		MinimalSupportedSQVersion: must(flags.GetString("minimal-supported-sq-version")),
		LatestSupportedSQVersion:  must(flags.GetString("latest-supported-sq-version")),
		ChangelogURL:              must(flags.GetString("changelog-url")),
		DownloadURL:               must(flags.GetString("download-url")),
		PublicVersion:             must(flags.GetString("public-version")),
		SonarCloudURL:             must(flags.GetString("sonar-cloud-url")),
		SkipCreatingPullRequest:   must(flags.GetBool("skip-creating-pull-request")),
		SkipAnnouncing:            must(flags.GetBool("skip-announcing")),
	}
}

func run(log *logrus.Logger, cmd *cobra.Command, _ []string) error {
	log.Infof("starting sonar-update-center (version=%s)", version)
	aCfg, err := config.NewActionConfigFromEnv()
	if err != nil {
		return err
	}
	aCfg.Version = version
	input := releaseInputFromFlags(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ghClient := aCfg.CreateGitHubClient()
	repo := repository.New(log, ghClient, repository.Options{
		Token:            aCfg.GitHubToken,
		UpstreamOwner:    aCfg.UpstreamOwner,
		UpstreamRepo:     aCfg.UpstreamRepo,
		UpstreamBranch:   aCfg.UpstreamBranch,
		ForkTimeout:      aCfg.ForkTimeout,
		ForkPollInterval: aCfg.ForkPollInterval,
	})
	resolver := sonarqube.NewResolver(log, ghClient, aCfg.SonarQubeOwner, aCfg.SonarQubeRepo)
	announcer := discourse.New(aCfg.DiscourseHost, aCfg.DiscourseAPIKey, aCfg.DiscourseCategory)

	res, err := action.New(log, aCfg, repo, update.New(log, resolver), announcer).Run(ctx, input)
	if err != nil {
		return err
	}
	log.Infof("registered %s in %s on branch %s", input.PublicVersion, res.PropFile, res.Branch)
	return nil
}

func runLatestSonarQubeVersion(log *logrus.Logger, cmd *cobra.Command) error {
	aCfg, err := config.NewActionConfigFromEnv()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resolver := sonarqube.NewResolver(log, aCfg.CreateGitHubClient(), aCfg.SonarQubeOwner, aCfg.SonarQubeRepo)
	latest, err := resolver.SearchLatestMinorVersion(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), latest)
	return err
}
